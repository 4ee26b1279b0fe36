package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it instead of on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameter
	KindAuthentication
	KindDataFetch
	KindSymbolNotFound
	KindDataIntegrity
	KindOptionChain
	KindPricing
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindAuthentication:
		return "authentication"
	case KindDataFetch:
		return "data_fetch"
	case KindSymbolNotFound:
		return "symbol_not_found"
	case KindDataIntegrity:
		return "data_integrity"
	case KindOptionChain:
		return "option_chain"
	case KindPricing:
		return "pricing"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries.
//
// Temporary is set when the upstream could not be reached (transport failure,
// timeout). It is false when the upstream answered and rejected the request.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Transport wraps a failure to reach the upstream at all.
func Transport(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: "upstream unreachable", Temporary: true, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTemporary reports whether err is a transport failure worth retrying later.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}
	return false
}
