package feature

import (
	"errors"
	"fmt"
)

// ErrNoDetailLevel indicates a feature with line or area geometry that has
// no detail level present at all. Every such feature must carry at least
// one.
var ErrNoDetailLevel = errors.New("feature has no geometry at any detail level")

// InvariantError indicates builder state that cannot be serialized.
// It is a caller bug upstream of the codec.
type InvariantError struct {
	Rule string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid feature: %s", e.Rule)
}

func invariant(format string, args ...any) error {
	return &InvariantError{Rule: fmt.Sprintf(format, args...)}
}

// CorruptError indicates bytes that cannot be decoded or a parse stage
// requested out of order.
type CorruptError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	msg := fmt.Sprintf("corrupt feature (%s stage): %s", e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

func corrupt(stage stage, err error, format string, args ...any) error {
	return &CorruptError{Stage: stage.String(), Reason: fmt.Sprintf(format, args...), Err: err}
}
