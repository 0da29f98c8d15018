package coordinator

import (
	"errors"
	"fmt"
)

// ValidationKind classifies why Enqueue rejected a descriptor (spec.md §7
// "Validation(kind ...)"). Validation errors never reach the engine.
type ValidationKind string

const (
	ValidationTooLarge     ValidationKind = "tooLarge"
	ValidationWrongType    ValidationKind = "wrongType"
	ValidationTooManyFiles ValidationKind = "tooManyFiles"
	ValidationDuplicate    ValidationKind = "duplicate"
)

// ErrValidation is the sentinel every ValidationError wraps; check with
// errors.Is(err, coordinator.ErrValidation).
var ErrValidation = errors.New("coordinator: validation failed")

// ValidationError reports one rejected descriptor from a batch Enqueue call.
type ValidationError struct {
	Kind   ValidationKind
	FileID string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("coordinator: validation failed for %s (%s): %s", e.FileID, e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
