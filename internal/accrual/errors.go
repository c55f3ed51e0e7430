package accrual

import "errors"

// Kind classifies a failed operation for the caller.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from this package.
	KindUnknown Kind = iota
	// KindInvalidInput means the request was rejected before any side effect.
	KindInvalidInput
	// KindUpstream means the weather provider failed; nothing was persisted.
	KindUpstream
	// KindStorage means the store failed; nothing was persisted.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	}
	return "unknown"
}

// Error carries a Kind alongside the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return "accrual: " + e.Kind.String() + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
