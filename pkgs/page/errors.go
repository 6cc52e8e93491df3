package page

import (
	"errors"
	"fmt"
)

// Kind classifies the faults FetchPage reports to its caller. Stream faults
// and per-message parse faults are recovered inside the engine and never
// surface as errors.
type Kind int

const (
	// KindRequest means the page request itself was invalid.
	KindRequest Kind = iota + 1
	// KindConnection means the session, mailbox or fetch stream could not be
	// established.
	KindConnection
	// KindSearch means the filter query failed.
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindConnection:
		return "connection"
	case KindSearch:
		return "search"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrInvalidRequest = errors.New("invalid page request")
	ErrConnection     = errors.New("mailbox connection failed")
	ErrSearch         = errors.New("mailbox search failed")
)

// Error is the typed error returned by FetchPage.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindRequest:
		return target == ErrInvalidRequest
	case KindConnection:
		return target == ErrConnection
	case KindSearch:
		return target == ErrSearch
	}
	return false
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
