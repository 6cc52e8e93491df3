package page

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds the assembly of one page's fetch stream.
const DefaultTimeout = 20 * time.Second

// Engine fetches pages. An Engine holds no per-request state and may be
// shared; each FetchPage call opens its own session.
type Engine struct {
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
	metrics *Metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTimeout overrides the assembly deadline. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger used for page diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the wall clock used for undated messages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics records page outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine returns an engine with a 20 second assembly deadline and no
// logging.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchPage returns one page of summaries from mailbox.
//
// It fails only when the request is invalid, the session or mailbox cannot
// be opened, the search fails, or the fetch stream cannot be started. A
// stream that errors or outlives the deadline yields the messages completed
// so far; messages that fail to parse are left out. The session is closed
// before FetchPage returns.
func (e *Engine) FetchPage(ctx context.Context, conn Connector, mailbox string, req PageRequest) (*Page, error) {
	if err := req.validate(); err != nil {
		return nil, e.fail(newError(KindRequest, "fetch page", err))
	}

	sess, err := conn.Connect(ctx)
	if err != nil {
		return nil, e.fail(newError(KindConnection, "connect", err))
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.logger.Debug().Err(cerr).Msg("session close failed")
		}
	}()

	if err := sess.OpenMailbox(ctx, mailbox); err != nil {
		return nil, e.fail(newError(KindConnection, "open mailbox "+mailbox, err))
	}

	uids, err := sess.Search(ctx, req.Filter)
	if err != nil {
		return nil, e.fail(newError(KindSearch, "search "+req.Filter.String(), err))
	}

	meta := NewPaginationMeta(req.Page, req.PageSize, len(uids))
	win := Plan(uids, req.Page, req.PageSize)
	if len(win.UIDs) == 0 {
		e.metrics.page(false)
		return &Page{Emails: []EmailSummary{}, Pagination: meta}, nil
	}

	job := newFetchJob(uuid.NewString(), win.UIDs)
	log := e.logger.With().
		Str("job", job.id).
		Str("mailbox", mailbox).
		Int("page", req.Page).
		Logger()

	stream, err := sess.OpenFetchStream(ctx, win.UIDs)
	if err != nil {
		return nil, e.fail(newError(KindConnection, "open fetch stream", err))
	}

	started := time.Now()
	partial := e.assemble(ctx, stream, job, log)
	e.metrics.observe(time.Since(started).Seconds())

	emails := e.normalizeAll(job, log)

	counts := job.counts()
	log.Info().
		Int("uids", len(win.UIDs)).
		Int("returned", len(emails)).
		Int("pending", counts[statePending]).
		Int("receiving", counts[stateReceiving]).
		Int("failed", counts[stateFailed]).
		Bool("partial", partial).
		Msg("page fetched")
	e.metrics.page(partial)

	return &Page{Emails: emails, Pagination: meta, Partial: partial}, nil
}

// streamItem carries one result of Stream.Next across goroutines.
type streamItem struct {
	ev  Event
	err error
}

// assemble drains stream into job until the stream ends, fails, or the
// deadline passes. It reports whether the result is partial.
//
// A pump goroutine owns the stream and forwards events; this goroutine is
// the only writer of job. Once assemble returns the pump stops forwarding,
// closes the stream and exits, so late events never reach job.
func (e *Engine) assemble(ctx context.Context, stream Stream, job *fetchJob, log zerolog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	items := make(chan streamItem)
	stop := make(chan struct{})
	defer close(stop)
	go pump(stream, items, stop)

	for {
		select {
		case <-ctx.Done():
			log.Warn().
				Err(ctx.Err()).
				Dur("timeout", e.timeout).
				Int("completed", len(job.complete())).
				Msg("fetch deadline reached, returning partial page")
			return true

		case it := <-items:
			if it.err != nil {
				if errors.Is(it.err, io.EOF) {
					return false
				}
				log.Warn().
					Err(it.err).
					Int("completed", len(job.complete())).
					Msg("fetch stream failed, returning partial page")
				return true
			}
			e.applyEvent(job, it.ev, log)
		}
	}
}

func (e *Engine) applyEvent(job *fetchJob, ev Event, log zerolog.Logger) {
	switch job.apply(ev) {
	case droppedUnknown:
		e.metrics.skip("unknown")
		log.Debug().Uint32("uid", uint32(ev.UID)).Stringer("kind", ev.Kind).Msg("event for unrequested uid dropped")
	case droppedDuplicate:
		e.metrics.skip("duplicate")
		log.Debug().Uint32("uid", uint32(ev.UID)).Stringer("kind", ev.Kind).Msg("event for finalized uid dropped")
	case skippedEmpty:
		e.metrics.skip("empty")
		log.Debug().Uint32("uid", uint32(ev.UID)).Msg("empty message skipped")
	}
}

// pump forwards stream events until the stream ends or stop is closed.
func pump(stream Stream, items chan<- streamItem, stop <-chan struct{}) {
	defer stream.Close()
	for {
		ev, err := stream.Next()
		select {
		case items <- streamItem{ev: ev, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (e *Engine) normalizeAll(job *fetchJob, log zerolog.Logger) []EmailSummary {
	now := e.now()
	raws := job.complete()
	emails := make([]EmailSummary, 0, len(raws))
	for _, raw := range raws {
		summary, err := Normalize(raw, now)
		if err != nil {
			job.fail(raw.UID)
			e.metrics.skip("parse")
			log.Warn().Err(err).Uint32("uid", uint32(raw.UID)).Msg("message skipped")
			continue
		}
		emails = append(emails, summary)
	}
	SortSummaries(emails)
	return emails
}

func (e *Engine) fail(err *Error) error {
	e.metrics.failure(err.Kind)
	e.logger.Error().Err(err).Stringer("kind", err.Kind).Msg("page fetch failed")
	return err
}
