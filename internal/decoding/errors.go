package decoding

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleLoading marks a broken plugin set. It is fatal at startup.
	ErrModuleLoading = errors.New("module loading error")
	// ErrRemote marks collaborator I/O failures. They abort one transaction.
	ErrRemote = errors.New("remote error")
	// ErrMalformedLog marks log data a rule could not parse.
	ErrMalformedLog = errors.New("malformed log")
)

// ModuleLoadingError describes why a plugin could not be registered.
type ModuleLoadingError struct {
	Plugin string
	Reason string
}

func (e *ModuleLoadingError) Error() string {
	return fmt.Sprintf("load plugin %s: %s", e.Plugin, e.Reason)
}

func (e *ModuleLoadingError) Unwrap() error {
	return ErrModuleLoading
}

// RemoteError wraps a failed call to the chain source or another service.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemote, e.Err}
}

// NewRemoteError wraps err as a RemoteError for op.
func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

// Malformed builds an error wrapping ErrMalformedLog.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedLog, fmt.Sprintf(format, args...))
}
