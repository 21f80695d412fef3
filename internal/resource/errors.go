package resource

import (
	"errors"
	"fmt"
)

// Kind names a constrained resource of the hosting environment.
type Kind string

// Resource kinds.
const (
	Memory Kind = "memory"
	Time   Kind = "time"
)

// ErrExceeded matches every *ExceededError via errors.Is.
var ErrExceeded = errors.New("resource: headroom exceeded")

// ExceededError reports that the remaining headroom of a resource fell
// below the requested safety buffer.
type ExceededError struct {
	Resource  Kind
	Available int64
	Reserved  int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("resource: %s headroom exceeded (available %d, reserved %d)",
		e.Resource, e.Available, e.Reserved)
}

// Is makes errors.Is(err, ErrExceeded) true for any ExceededError.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// IsExceeded reports whether err signals exhaustion of the given resource.
func IsExceeded(err error, kind Kind) bool {
	var ex *ExceededError
	if !errors.As(err, &ex) {
		return false
	}
	return ex.Resource == kind
}
