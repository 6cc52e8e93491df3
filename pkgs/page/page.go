// Package page retrieves a bounded, newest-first page of message summaries
// from a remote mailbox.
//
// The engine works against a [Session] that exposes search and a streaming
// fetch. A page request is turned into a window of UIDs, the fetch stream is
// reassembled into one raw buffer per UID under a deadline, and the buffers
// are normalized into [EmailSummary] records sorted by date.
package page

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UID is a per-mailbox message identifier. UIDs are never reused while the
// mailbox exists, unlike sequence numbers.
type UID uint32

// Filter selects which messages of a mailbox take part in a page.
type Filter int

const (
	// FilterAll matches every message in the mailbox.
	FilterAll Filter = iota
	// FilterUnread matches messages without the \Seen flag.
	FilterUnread
)

// String returns the filter name as accepted by ParseFilter.
func (f Filter) String() string {
	switch f {
	case FilterUnread:
		return "unread"
	default:
		return "all"
	}
}

// ParseFilter parses "all" or "unread". An empty string means "all".
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "unread":
		return FilterUnread, nil
	default:
		return FilterAll, fmt.Errorf("unknown filter %q (want all or unread)", s)
	}
}

// PageRequest asks for one page of a mailbox. Page is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
	Filter   Filter
}

func (r PageRequest) validate() error {
	if r.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", r.Page)
	}
	if r.PageSize < 1 {
		return fmt.Errorf("page size must be >= 1, got %d", r.PageSize)
	}
	return nil
}

// Protocol-level flags carried by attribute events.
const (
	FlagSeen    = `\Seen`
	FlagFlagged = `\Flagged`
)

// EventKind tells what an Event carries.
type EventKind int

const (
	// EventAttributes carries the message flags.
	EventAttributes EventKind = iota
	// EventChunk carries the next fragment of the raw message.
	EventChunk
	// EventEnd marks the end of one message's data.
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventAttributes:
		return "attributes"
	case EventChunk:
		return "chunk"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of a fetch stream. Events of different UIDs may be
// interleaved; chunks of a single UID arrive in order.
type Event struct {
	Kind  EventKind
	UID   UID
	Flags []string
	Chunk []byte
}

// Stream is the event source of one multi-message fetch.
//
// Next blocks until the next event is available. It returns io.EOF once the
// whole sequence has ended; any other error is a stream fault. A Stream is
// used by a single goroutine. Closing the owning Session must unblock a
// pending Next.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Session is one authenticated connection to a mail store. It is not safe
// for concurrent use.
type Session interface {
	// OpenMailbox selects the named mailbox read-only.
	OpenMailbox(ctx context.Context, name string) error
	// Search returns the UIDs matching filter in ascending order.
	Search(ctx context.Context, filter Filter) ([]UID, error)
	// OpenFetchStream starts fetching the flags and full raw content of uids.
	OpenFetchStream(ctx context.Context, uids []UID) (Stream, error)
	Close() error
}

// Connector opens new sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// RawMessage is a fully assembled message buffer with the flags captured
// from its attribute event.
type RawMessage struct {
	UID   UID
	Raw   []byte
	Flags []string
}

// EmailSummary is the output record for one message.
type EmailSummary struct {
	ID          UID       `json:"id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	FromAddress string    `json:"fromAddress"`
	To          []string  `json:"to"`
	Date        time.Time `json:"date"`
	Timestamp   int64     `json:"timestamp"`
	Unread      bool      `json:"unread"`
	Starred     bool      `json:"starred"`
	Preview     string    `json:"preview"`
}

// PaginationMeta describes where a page sits in the full result set.
type PaginationMeta struct {
	Page          int  `json:"page"`
	PageSize      int  `json:"pageSize"`
	TotalMessages int  `json:"totalMessages"`
	TotalPages    int  `json:"totalPages"`
	HasMore       bool `json:"hasMore"`
}

// NewPaginationMeta derives the metadata for a page. An empty result set is
// always reported as page 1 of 0.
func NewPaginationMeta(page, pageSize, total int) PaginationMeta {
	if total <= 0 {
		return PaginationMeta{Page: 1, PageSize: pageSize}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total-1)/pageSize + 1
	}
	return PaginationMeta{
		Page:          page,
		PageSize:      pageSize,
		TotalMessages: total,
		TotalPages:    totalPages,
		HasMore:       page < totalPages,
	}
}

// Page is the result of FetchPage.
type Page struct {
	Emails     []EmailSummary `json:"emails"`
	Pagination PaginationMeta `json:"pagination"`

	// Partial is set when the fetch stream ended early (deadline or stream
	// fault). It is not part of the response shape.
	Partial bool `json:"-"`
}
