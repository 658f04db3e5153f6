package blobvault

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("chunkSize", "must be positive")
	if !IsConfigError(err) {
		t.Error("IsConfigError should match")
	}
	if IsIntegrityError(err) {
		t.Error("IsIntegrityError should not match a config error")
	}

	wrapped := fmt.Errorf("opening vault: %w", err)
	if !IsConfigError(wrapped) {
		t.Error("IsConfigError should match through wrapping")
	}
}

func TestIntegrityError_Unwrap(t *testing.T) {
	err := NewIntegrityError("aead", ErrAuthentication)
	if !errors.Is(err, ErrAuthentication) {
		t.Error("expected errors.Is to reach the sentinel")
	}
	if !IsIntegrityError(err) {
		t.Error("IsIntegrityError should match")
	}

	chunkErr := NewChunkIntegrityError("stream", 7, ErrChunkOrdering)
	if !errors.Is(chunkErr, ErrChunkOrdering) {
		t.Error("expected errors.Is to reach ErrChunkOrdering")
	}
	var ie *IntegrityError
	if !errors.As(chunkErr, &ie) || ie.ChunkIdx != 7 {
		t.Errorf("chunk index not carried: %+v", ie)
	}
}

func TestCapacityError(t *testing.T) {
	err := &CapacityError{Requested: 100, Available: 10}
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Error("CapacityError should unwrap to ErrInsufficientSpace")
	}
	if !IsCapacityError(err) {
		t.Error("IsCapacityError should match")
	}
}

func TestTransientError(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewTransientError("upload", inner)
	if !IsTransientError(err) {
		t.Error("IsTransientError should match")
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to reach the cause")
	}
	if IsTransientError(ErrShareConsumed) {
		t.Error("a sentinel is not transient")
	}
}
