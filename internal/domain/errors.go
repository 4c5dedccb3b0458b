package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotAdmin            = errors.New("sender is not the admin")
	ErrUnknownTaskID       = errors.New("unknown task id")
	ErrDuplicateTaskID     = errors.New("task id already bound")
	ErrNotNativeAsset      = errors.New("asset is not a native token")
	ErrUnknownAsset        = errors.New("asset not found in name service")
	ErrUnsupported         = errors.New("operation not supported")
	ErrInvalidSchedule     = errors.New("invalid schedule expression")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidName         = errors.New("invalid domain name")
	ErrNotInstantiated     = errors.New("module not instantiated")
	ErrAlreadyInstantiated = errors.New("module already instantiated")
	ErrNotFound            = errors.New("not found")
	ErrNotNameOwner        = errors.New("sender does not own the domain")
	ErrInvalidMessage      = errors.New("invalid message")
)

// NotManagerError rejects a renewal trigger whose caller is not the executor
// the scheduler has on record for the task.
type NotManagerError struct {
	Caller   Addr
	Expected Addr
}

func (e *NotManagerError) Error() string {
	return fmt.Sprintf("sender %s is not the task manager, expected %s", e.Caller, e.Expected)
}

// RemoteError wraps a failed sub-call or query against another contract.
type RemoteError struct {
	Contract Addr
	Op       string
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s on %s: %v", e.Op, e.Contract, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func Remote(contract Addr, op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Contract: contract, Op: op, Err: err}
}

// Class buckets an error for callers that surface it (HTTP status, logs).
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassAuthorization
	ClassNotFound
	ClassUnsupported
	ClassRemote
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassNotFound:
		return "not_found"
	case ClassUnsupported:
		return "unsupported"
	case ClassRemote:
		return "remote"
	default:
		return "internal"
	}
}

func Classify(err error) Class {
	var nm *NotManagerError
	var re *RemoteError
	switch {
	case err == nil:
		return ClassInternal
	case errors.As(err, &nm), errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotNameOwner):
		return ClassAuthorization
	case errors.As(err, &re):
		return ClassRemote
	case errors.Is(err, ErrUnknownTaskID), errors.Is(err, ErrNotFound), errors.Is(err, ErrNotInstantiated):
		return ClassNotFound
	case errors.Is(err, ErrUnsupported):
		return ClassUnsupported
	case errors.Is(err, ErrNotNativeAsset), errors.Is(err, ErrUnknownAsset),
		errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidName), errors.Is(err, ErrAlreadyInstantiated),
		errors.Is(err, ErrInvalidMessage):
		return ClassValidation
	default:
		return ClassInternal
	}
}
