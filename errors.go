package blobvault

import (
	"errors"
	"fmt"
)

// Error taxonomy
//
// Errors fall into four classes. ConfigError is fatal and never retried.
// IntegrityError means ciphertext cannot be trusted; no partial plaintext is
// ever returned alongside one. CapacityError is surfaced for the caller to
// react to. TransientError is retryable and, for transfers, is paired with
// checkpoint state so work resumes instead of restarting.

// ConfigError represents an invalid configuration or parameter
type ConfigError struct {
	Field   string // The field or parameter that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IntegrityError represents an authentication failure, chunk-ordering
// violation, or corrupt header
type IntegrityError struct {
	Context  string // Where the failure was detected ("index", "chunk", ...)
	ChunkIdx uint32 // Chunk index, if applicable
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *IntegrityError) Error() string {
	if e.Context != "" && e.ChunkIdx > 0 {
		return fmt.Sprintf("integrity error: %s (chunk %d): %s", e.Context, e.ChunkIdx, e.Message)
	} else if e.Context != "" {
		return fmt.Sprintf("integrity error: %s: %s", e.Context, e.Message)
	}
	return fmt.Sprintf("integrity error: %s", e.Message)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// CapacityError represents an allocation that would exceed the container's
// usable capacity
type CapacityError struct {
	Requested int64 // Bytes requested
	Available int64 // Bytes remaining
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity error: requested %d bytes, %d available", e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientSpace
}

// TransientError represents a retryable I/O failure (relay unreachable,
// disk write failure)
type TransientError struct {
	Operation string // "upload", "download", "write", ...
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %s: %s", e.Operation, e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Sentinel errors
var (
	ErrKeyLength          = errors.New("key must be 32 bytes")
	ErrAuthentication     = errors.New("authentication failed - data may be corrupted or tampered")
	ErrChunkOrdering      = errors.New("chunk ordering violation")
	ErrCorruptHeader      = errors.New("corrupt or truncated header")
	ErrUnsupportedFormat  = errors.New("unsupported format version")
	ErrInvalidPattern     = errors.New("pattern has too few nodes")
	ErrInvalidPhrase      = errors.New("phrase does not meet minimum requirements")
	ErrInsufficientSpace  = errors.New("insufficient container space")
	ErrVaultAlreadyExists = errors.New("a vault with this key fingerprint already exists")
	ErrFileNotFound       = errors.New("file not found in vault")
	ErrNotReady           = errors.New("container initialization has not completed")
	ErrClosed             = errors.New("store is closed")
	ErrShareNotFound      = errors.New("share not found")
	ErrShareConsumed      = errors.New("share already consumed")
	ErrShareExpired       = errors.New("share expired")
	ErrShareIncomplete    = errors.New("share upload incomplete")
)

// Helper constructors

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) error {
	return &ConfigError{Field: field, Message: message}
}

// NewIntegrityError creates a new integrity error wrapping err
func NewIntegrityError(context string, err error) error {
	return &IntegrityError{Context: context, Message: err.Error(), Err: err}
}

// NewChunkIntegrityError creates an integrity error for a specific chunk
func NewChunkIntegrityError(context string, chunkIdx uint32, err error) error {
	return &IntegrityError{Context: context, ChunkIdx: chunkIdx, Message: err.Error(), Err: err}
}

// NewTransientError creates a new transient error wrapping err
func NewTransientError(operation string, err error) error {
	return &TransientError{Operation: operation, Message: err.Error(), Err: err}
}

// Error checking helpers

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsIntegrityError checks if an error is an integrity error
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsCapacityError checks if an error is a capacity error
func IsCapacityError(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// IsTransientError checks if an error is a transient (retryable) error
func IsTransientError(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
