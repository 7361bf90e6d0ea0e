package rotation

import (
	"errors"
	"fmt"
)

// Terminal rotation failures. None are retried in process; the rotation
// scheduler decides whether to invoke the step again.
var (
	ErrRotationNotEnabled = errors.New("rotation not enabled")
	ErrUnknownVersion     = errors.New("unknown secret version")
	ErrNotPending         = errors.New("version not staged as AWSPENDING")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrConfiguration      = errors.New("configuration error")
	ErrInvalidSecret      = errors.New("invalid secret")
	ErrInvalidStep        = errors.New("invalid step")
)

// StepError carries the invocation a failure belongs to
type StepError struct {
	Step    Step
	ARN     string
	Version string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed for secret %s version %s: %v", e.Step, e.ARN, e.Version, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
