package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrRedirectTimeout means the remote service never redirected to the job host.
	ErrRedirectTimeout = errors.New("redirect to conversion host timed out")
	// ErrLinkNotReady means the download control never became actionable.
	ErrLinkNotReady = errors.New("download link not ready before deadline")
	// ErrEmptyLink means the download control had no target URL.
	ErrEmptyLink = errors.New("download link is empty")
	// ErrLinkConsumed means a download link was used twice.
	ErrLinkConsumed = errors.New("download link already consumed")
	// ErrDirectFetch marks a failed direct transfer.
	ErrDirectFetch = errors.New("direct fetch failed")
	// ErrFallbackTimeout means the browser download never completed.
	ErrFallbackTimeout = errors.New("browser download did not complete before deadline")
	// ErrCanceled marks items that were never finished because the run stopped.
	ErrCanceled = errors.New("run canceled")
)

// StateError tags an attempt failure with the state it happened in.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// FailedIn wraps err with the state it occurred in. nil stays nil.
func FailedIn(state State, err error) error {
	if err == nil {
		return nil
	}
	var existing *StateError
	if errors.As(err, &existing) {
		return err
	}
	return &StateError{State: state, Err: err}
}

// FetchError is returned when both fetch strategies fail.
type FetchError struct {
	Direct   error
	Fallback error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("direct: %v; browser fallback: %v", e.Direct, e.Fallback)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *FetchError) Unwrap() []error {
	return []error{e.Direct, e.Fallback}
}
