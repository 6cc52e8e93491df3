package email

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/emx-mail/mailpage/pkgs/page"
)

// fetchChunkSize bounds the size of one chunk event.
const fetchChunkSize = 32 * 1024

// fetchStream adapts an imapclient.FetchCommand to page.Stream.
//
// Data items of one message are turned into events in arrival order. Items
// that arrive before the message's UID are held and released once the UID is
// known; a message that never reports its UID is dropped. The body literal is
// read in chunks so a large message never has to sit in one buffer here.
type fetchStream struct {
	cmd    *imapclient.FetchCommand
	onDone func()

	msg     *imapclient.FetchMessageData
	uid     page.UID
	held    []page.Event
	queue   []page.Event
	literal io.Reader
	buf     []byte

	finished bool
	err      error
}

func newFetchStream(cmd *imapclient.FetchCommand, onDone func()) *fetchStream {
	return &fetchStream{
		cmd:    cmd,
		onDone: onDone,
		buf:    make([]byte, fetchChunkSize),
	}
}

// Next implements page.Stream.
func (s *fetchStream) Next() (page.Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.finished {
			return page.Event{}, s.err
		}

		if s.literal != nil {
			s.readLiteral()
			continue
		}

		if s.msg == nil {
			s.msg = s.cmd.Next()
			if s.msg == nil {
				if err := s.cmd.Close(); err != nil {
					s.finish(fmt.Errorf("fetch failed: %w", err))
				} else {
					s.finish(io.EOF)
				}
				continue
			}
			s.uid = 0
			s.held = s.held[:0]
		}

		item := s.msg.Next()
		if item == nil {
			if s.uid != 0 {
				s.queue = append(s.queue, page.Event{Kind: page.EventEnd, UID: s.uid})
			}
			s.msg = nil
			continue
		}

		switch item := item.(type) {
		case imapclient.FetchItemDataUID:
			s.uid = page.UID(item.UID)
			for _, ev := range s.held {
				ev.UID = s.uid
				s.queue = append(s.queue, ev)
			}
			s.held = s.held[:0]
		case imapclient.FetchItemDataFlags:
			flags := make([]string, len(item.Flags))
			for i, f := range item.Flags {
				flags[i] = string(f)
			}
			s.emit(page.Event{Kind: page.EventAttributes, Flags: flags})
		case imapclient.FetchItemDataBodySection:
			if item.Literal != nil {
				s.literal = item.Literal
			}
		}
	}
}

// readLiteral reads the next chunk of the current body literal.
func (s *fetchStream) readLiteral() {
	n, err := io.ReadFull(s.literal, s.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		s.emit(page.Event{Kind: page.EventChunk, Chunk: chunk})
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.literal = nil
	default:
		s.literal = nil
		s.finish(fmt.Errorf("failed to read message body: %w", err))
	}
}

func (s *fetchStream) emit(ev page.Event) {
	if s.uid == 0 {
		s.held = append(s.held, ev)
		return
	}
	ev.UID = s.uid
	s.queue = append(s.queue, ev)
}

func (s *fetchStream) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	s.msg = nil
	s.literal = nil
	s.held = nil
	if s.onDone != nil {
		s.onDone()
	}
}

// Close implements page.Stream. It waits for the fetch command to finish,
// which happens early if the session has been closed.
func (s *fetchStream) Close() error {
	if s.finished {
		return nil
	}
	err := s.cmd.Close()
	s.finish(io.EOF)
	s.queue = nil
	return err
}
