package pagination

import (
	"errors"
	"fmt"
)

// Failure kinds. Every *Error matches exactly one of these with errors.Is.
var (
	// ErrTransport means no usable response was obtained for a page.
	ErrTransport = errors.New("transport failure")

	// ErrMalformedPayload means a 2xx body could not be decoded as a STAT envelope.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnboundedPagination means the continuation chain repeated or ran past MaxPages.
	ErrUnboundedPagination = errors.New("unbounded pagination")
)

// Error is a fatal pagination failure.
type Error struct {
	// Kind is one of ErrTransport, ErrMalformedPayload, ErrUnboundedPagination.
	Kind error

	// URL of the failing request with the API key redacted.
	URL string

	// Page is the 1-based page number within the session.
	Page int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagination: %v on page %d (%s): %v", e.Kind, e.Page, e.URL, e.Err)
	}
	return fmt.Sprintf("pagination: %v on page %d (%s)", e.Kind, e.Page, e.URL)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
