package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedSpecification is returned when a provider document cannot be
// interpreted. It aborts the whole verification run.
var ErrMalformedSpecification = errors.New("malformed specification")

// SpecError locates a problem inside the provider document.
type SpecError struct {
	Location string
	Reason   string
}

func (e *SpecError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedSpecification, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s", ErrMalformedSpecification, e.Location, e.Reason)
}

func (e *SpecError) Unwrap() error {
	return ErrMalformedSpecification
}
