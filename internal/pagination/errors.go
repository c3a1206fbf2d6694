package pagination

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotReady       = errors.New("no page sequence loaded")
	ErrNoMorePages    = errors.New("no more pages")
	ErrFetchInFlight  = errors.New("fetch already in flight")
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrStale          = errors.New("fetch superseded by a newer query")
	ErrClosed         = errors.New("controller closed")
)

type ErrorKind int

const (
	// Transient failures may succeed when the user retries.
	Transient ErrorKind = iota + 1
	// Terminal failures will fail the same way again.
	Terminal
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// FetchError is a classified page fetch failure.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Retryable() bool {
	return e.Kind == Transient
}

// MarkTransient lets a Fetcher state the classification explicitly.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Kind: Transient, Err: err}
}

func MarkTerminal(err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Kind: Terminal, Err: err}
}

// Classify maps an arbitrary fetch error onto a FetchError. Timeouts,
// cancellation, network errors and errors reporting Temporary() are
// transient; everything else is terminal.
func Classify(err error) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: Transient, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &FetchError{Kind: Transient, Err: err}
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return &FetchError{Kind: Transient, Err: err}
	}

	return &FetchError{Kind: Terminal, Err: err}
}
