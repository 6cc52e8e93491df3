package email

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/emx-mail/mailpage/pkgs/page"
)

// IMAPSession is one authenticated IMAP connection. It implements
// page.Session and is not safe for concurrent use, except that Close may be
// called while a fetch stream is blocked.
type IMAPSession struct {
	client *imapclient.Client
	logger zerolog.Logger

	// streaming is set while a fetch command is still in flight.
	streaming atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newIMAPSession(client *imapclient.Client, logger zerolog.Logger) *IMAPSession {
	return &IMAPSession{client: client, logger: logger}
}

// wait runs fn, abandoning it and closing the connection if ctx ends first.
// imapclient commands are not context aware; closing the connection is what
// unblocks them.
func (s *IMAPSession) wait(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.client.Close()
		return ctx.Err()
	}
}

// OpenMailbox implements page.Session. The mailbox is opened read-only so
// fetching never changes flags.
func (s *IMAPSession) OpenMailbox(ctx context.Context, name string) error {
	return s.selectMailbox(ctx, name, true)
}

func (s *IMAPSession) selectMailbox(ctx context.Context, name string, readOnly bool) error {
	err := s.wait(ctx, func() error {
		_, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to select folder %s: %w", name, err)
	}
	return nil
}

func (s *IMAPSession) storeFlag(ctx context.Context, uid page.UID, flag imap.Flag, on bool) error {
	op := imap.StoreFlagsAdd
	if !on {
		op = imap.StoreFlagsDel
	}
	return s.wait(ctx, func() error {
		_, err := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
			Op:     op,
			Silent: true,
			Flags:  []imap.Flag{flag},
		}, nil).Collect()
		return err
	})
}

// Search implements page.Session.
func (s *IMAPSession) Search(ctx context.Context, filter page.Filter) ([]page.UID, error) {
	criteria := &imap.SearchCriteria{}
	if filter == page.FilterUnread {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	var data *imap.SearchData
	err := s.wait(ctx, func() error {
		var err error
		data, err = s.client.UIDSearch(criteria, nil).Wait()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	all := data.AllUIDs()
	uids := make([]page.UID, 0, len(all))
	for _, uid := range all {
		uids = append(uids, page.UID(uid))
	}
	slices.Sort(uids)
	return slices.Compact(uids), nil
}

// OpenFetchStream implements page.Session. It issues one UID FETCH for the
// flags and full raw content of uids without setting \Seen.
func (s *IMAPSession) OpenFetchStream(ctx context.Context, uids []page.UID) (page.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}

	s.streaming.Store(true)
	cmd := s.client.Fetch(imap.UIDSetNum(set...), &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})
	return newFetchStream(cmd, func() { s.streaming.Store(false) }), nil
}

// Close logs out and closes the connection. LOGOUT is skipped while a fetch
// is still in flight, since the server would answer it only after the fetch.
func (s *IMAPSession) Close() error {
	s.closeOnce.Do(func() {
		if !s.streaming.Load() {
			if err := s.client.Logout().Wait(); err != nil {
				s.logger.Debug().Err(err).Msg("imap logout failed")
			}
		}
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
