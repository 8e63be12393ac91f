package common

import (
	"errors"
	"fmt"
)

// StageError describes a failed operation on a staged file.
//
// It matches ErrIOFailure with errors.Is unless the wrapped cause is already
// one of the taxonomy sentinels (ErrAlreadyExists, ErrInvalidArgument,
// ErrorNotFound), in which case that sentinel is reported instead.
type StageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	if target != ErrIOFailure {
		return false
	}
	for _, s := range []error{ErrAlreadyExists, ErrInvalidArgument, ErrorNotFound} {
		if errors.Is(e.Err, s) {
			return false
		}
	}
	return true
}

// RelayError is returned when no relay candidate accepted a payload.
// StatusCode is zero when the last failure was a transport error.
type RelayError struct {
	FileName   string
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay %q failed: status %d", e.FileName, e.StatusCode)
	}
	return fmt.Sprintf("relay %q failed: %v", e.FileName, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func (e *RelayError) Is(target error) bool {
	return target == ErrRelayFailed
}
