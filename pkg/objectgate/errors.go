package objectgate

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrObjectNotFound indicates a logical path resolves to no object in any configured root
	ErrObjectNotFound = errors.New("object not found")

	// ErrAuthenticationRequired indicates an identity is needed to decide access
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAccessDenied indicates the identity lacks the requested permission
	ErrAccessDenied = errors.New("access denied")

	// ErrNotConfigured indicates a required setting is missing
	ErrNotConfigured = errors.New("not configured")

	// ErrUnknownGroupType indicates an access group with a type no resolver handles
	ErrUnknownGroupType = errors.New("unknown access group type")

	// ErrInvalidPolicy indicates a policy that cannot be stored
	ErrInvalidPolicy = errors.New("invalid acl policy")

	// ErrUnrecognizedPath indicates a URL that maps to no configured root
	ErrUnrecognizedPath = errors.New("unrecognized object path")

	// ErrOwnerImmutable indicates an attempt to change the owner outside of a transfer
	ErrOwnerImmutable = errors.New("object owner cannot be changed")

	// ErrInvalidVisibility indicates an unknown visibility value
	ErrInvalidVisibility = errors.New("invalid visibility")

	// ErrRangeNotSatisfiable indicates a Range header outside the object bounds
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ConfigError names the setting an operation needed but did not find
type ConfigError struct {
	Setting string
	Hint    string
}

func (e *ConfigError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s not set: %s", e.Setting, e.Hint)
	}
	return fmt.Sprintf("%s not set", e.Setting)
}

func (e *ConfigError) Unwrap() error {
	return ErrNotConfigured
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Bucket string
	Name   string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s/%s: %v", e.Op, e.Bucket, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for the given object and operation
func NewStorageError(op string, obj ObjectRef, err error) error {
	return &StorageError{Bucket: obj.Bucket, Name: obj.Name, Op: op, Err: err}
}
