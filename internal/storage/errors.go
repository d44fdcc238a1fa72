package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLocation marks a location string that cannot be parsed for
	// its scheme, e.g. an object-storage URI without a key.
	ErrMalformedLocation = errors.New("malformed location")

	// ErrBackendUnavailable marks connectivity or authentication failures.
	// The backend cannot serve any further request in the current run.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrDeleteFailed marks any other failure to remove a single artifact.
	ErrDeleteFailed = errors.New("delete failed")
)

// StorageError wraps a storage failure with the location it concerns.
type StorageError struct {
	Kind     error
	Location string
	Err      error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Location != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Location)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func malformed(location, format string, args ...any) error {
	return &StorageError{Kind: ErrMalformedLocation, Location: location, Err: fmt.Errorf(format, args...)}
}

func unavailable(location string, err error) error {
	return &StorageError{Kind: ErrBackendUnavailable, Location: location, Err: err}
}

func deleteFailed(location string, err error) error {
	return &StorageError{Kind: ErrDeleteFailed, Location: location, Err: err}
}
