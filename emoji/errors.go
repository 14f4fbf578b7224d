package emoji

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a missing or malformed name, extension or
	// size.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates an asset already exists for the key.
	ErrConflict = errors.New("emoji already exists")

	// ErrNotFound indicates no asset exists for the key.
	ErrNotFound = errors.New("not found")

	// ErrUpstream indicates the blob store or the index failed.
	ErrUpstream = errors.New("upstream failure")
)

// Kind classifies errors returned by Service.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConflict
	KindNotFound
	KindUpstream
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	case KindUpstream:
		return "upstream failure"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err. Joined errors report the first kind found,
// in the order of the constants above.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindUnknown
	}
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
