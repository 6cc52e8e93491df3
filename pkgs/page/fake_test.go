package page

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// step is one scripted result of fakeStream.Next.
type step struct {
	ev  Event
	err error
}

// fakeStream replays steps, then either ends with io.EOF or stalls until
// the owning session is closed.
type fakeStream struct {
	steps  []step
	pos    int
	stall  bool
	unstop <-chan struct{}
	closes atomic.Int32
}

func (s *fakeStream) Next() (Event, error) {
	if s.pos < len(s.steps) {
		st := s.steps[s.pos]
		s.pos++
		return st.ev, st.err
	}
	if s.stall {
		<-s.unstop
		return Event{}, errors.New("connection closed")
	}
	return Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

// fakeSession is a scripted Session.
type fakeSession struct {
	uids   []UID
	stream *fakeStream

	openErr   error
	searchErr error
	streamErr error

	mu          sync.Mutex
	mailbox     string
	filter      Filter
	fetched     []UID
	fetchCalls  int
	closeCalls  int
	closeSignal chan struct{}
	closeOnce   sync.Once
}

func newFakeSession(uids []UID, steps ...step) *fakeSession {
	s := &fakeSession{uids: uids, closeSignal: make(chan struct{})}
	s.stream = &fakeStream{steps: steps, unstop: s.closeSignal}
	return s
}

func (s *fakeSession) OpenMailbox(_ context.Context, name string) error {
	s.mailbox = name
	return s.openErr
}

func (s *fakeSession) Search(_ context.Context, filter Filter) ([]UID, error) {
	s.filter = filter
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.uids, nil
}

func (s *fakeSession) OpenFetchStream(_ context.Context, uids []UID) (Stream, error) {
	s.fetchCalls++
	s.fetched = append([]UID(nil), uids...)
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return s.stream, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closeSignal) })
	return nil
}

func (s *fakeSession) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// fakeConnector hands out a single session.
type fakeConnector struct {
	sess     *fakeSession
	err      error
	connects int
}

func (c *fakeConnector) Connect(context.Context) (Session, error) {
	c.connects++
	if c.err != nil {
		return nil, c.err
	}
	return c.sess, nil
}

// seqUIDs returns n ascending UIDs starting at first.
func seqUIDs(first UID, n int) []UID {
	out := make([]UID, n)
	for i := range out {
		out[i] = first + UID(i)
	}
	return out
}

// messageSteps scripts the events of one message: flags, the raw bytes in
// two chunks, then the end marker.
func messageSteps(uid UID, raw string, flags ...string) []step {
	half := len(raw) / 2
	return []step{
		{ev: Event{Kind: EventAttributes, UID: uid, Flags: flags}},
		{ev: Event{Kind: EventChunk, UID: uid, Chunk: []byte(raw[:half])}},
		{ev: Event{Kind: EventChunk, UID: uid, Chunk: []byte(raw[half:])}},
		{ev: Event{Kind: EventEnd, UID: uid}},
	}
}

// rawMail builds a small RFC 5322 message. An empty date omits the header.
func rawMail(subject, date, body string) string {
	s := "From: Alice Example <alice@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: " + subject + "\r\n"
	if date != "" {
		s += "Date: " + date + "\r\n"
	}
	return s + "Content-Type: text/plain; charset=utf-8\r\n\r\n" + body
}

// datedMail builds a message whose date grows with uid, so newer UIDs are
// also newer by date.
func datedMail(uid UID) string {
	return rawMail(
		fmt.Sprintf("Message %d", uid),
		fmt.Sprintf("Mon, 02 Feb 2026 %02d:00:00 +0000", int(uid)%24),
		fmt.Sprintf("Body of message %d", uid),
	)
}

func concat(parts ...[]step) []step {
	var out []step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
