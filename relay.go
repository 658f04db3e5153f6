package blobvault

import (
	"context"
	"time"
)

// Relay is the cloud intermediary a share transfer moves through. The
// relay never sees a phrase or a key: shares are addressed by the share
// key's fingerprint, which both sides derive from the phrase
// independently. Chunks carry explicit indices and are reassembled
// strictly by index, never by delivery order.
type Relay interface {
	// CreateShare registers a share before any chunks are uploaded
	CreateShare(ctx context.Context, meta ShareMeta) error

	// UploadChunk stores one chunk by explicit index. Re-uploading an
	// index overwrites it, which makes retries idempotent.
	UploadChunk(ctx context.Context, shareID string, index uint32, data []byte) error

	// FinishUpload marks the share's backing data complete. A share is
	// never claimable before this.
	FinishUpload(ctx context.Context, shareID string) error

	// Metadata returns the share's metadata
	Metadata(ctx context.Context, shareID string) (*ShareMeta, error)

	// DownloadChunk fetches one chunk by explicit index
	DownloadChunk(ctx context.Context, shareID string, index uint32) ([]byte, error)

	// CheckAvailability reports whether the share can be claimed. It must
	// confirm the backing data is fully present, not merely that the
	// share exists.
	CheckAvailability(ctx context.Context, shareID string) (Availability, error)

	// MarkConsumed atomically marks the share consumed. Exactly one
	// caller succeeds; later calls fail with ErrShareConsumed.
	MarkConsumed(ctx context.Context, shareID string) error

	// Revoke deletes the share and its chunks. Idempotent: revoking a
	// share that does not exist is not an error.
	Revoke(ctx context.Context, shareID string) error
}

// Availability is the claimability state of a share at the relay
type Availability uint8

const (
	// AvailabilityNotFound means no such share exists
	AvailabilityNotFound Availability = iota
	// AvailabilityAvailable means the share is complete and claimable
	AvailabilityAvailable
	// AvailabilityConsumed means a recipient already imported the share
	AvailabilityConsumed
	// AvailabilityExpired means the share's policy expired it
	AvailabilityExpired
	// AvailabilityIncomplete means the share exists but its backing data
	// is not fully uploaded yet
	AvailabilityIncomplete
)

// String returns the string representation of the availability state
func (a Availability) String() string {
	switch a {
	case AvailabilityNotFound:
		return "notFound"
	case AvailabilityAvailable:
		return "available"
	case AvailabilityConsumed:
		return "consumed"
	case AvailabilityExpired:
		return "expired"
	case AvailabilityIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// ParseAvailability parses the wire form of an availability state
func ParseAvailability(s string) Availability {
	switch s {
	case "available":
		return AvailabilityAvailable
	case "consumed":
		return AvailabilityConsumed
	case "expired":
		return AvailabilityExpired
	case "incomplete":
		return AvailabilityIncomplete
	default:
		return AvailabilityNotFound
	}
}

// Err translates a non-claimable availability into its sentinel error,
// or nil for AvailabilityAvailable
func (a Availability) Err() error {
	switch a {
	case AvailabilityAvailable:
		return nil
	case AvailabilityConsumed:
		return ErrShareConsumed
	case AvailabilityExpired:
		return ErrShareExpired
	case AvailabilityIncomplete:
		return ErrShareIncomplete
	default:
		return ErrShareNotFound
	}
}

// ShareMeta is the relay-side description of one share
type ShareMeta struct {
	ShareID          string    `json:"shareId"`
	TotalChunks      uint32    `json:"totalChunks"`
	ChunkSize        uint32    `json:"chunkSize"`
	TotalSize        int64     `json:"totalSize"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt,omitempty"` // zero = no expiry
	MaxOpens         int       `json:"maxOpens,omitempty"`  // 0 = unlimited
	AllowScreenshots bool      `json:"allowScreenshots"`
	AllowDownloads   bool      `json:"allowDownloads"`
	Complete         bool      `json:"complete"`
	Consumed         bool      `json:"consumed"`
	Opens            int       `json:"opens"`
}

// availabilityOf computes the claimability of a share from its metadata
// and stored chunk count. Shared by relay implementations so they agree
// on the state machine.
func availabilityOf(meta *ShareMeta, storedChunks uint32, now time.Time) Availability {
	if meta == nil {
		return AvailabilityNotFound
	}
	if meta.Consumed {
		return AvailabilityConsumed
	}
	if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
		return AvailabilityExpired
	}
	if meta.MaxOpens > 0 && meta.Opens >= meta.MaxOpens {
		return AvailabilityExpired
	}
	if !meta.Complete || storedChunks < meta.TotalChunks {
		return AvailabilityIncomplete
	}
	return AvailabilityAvailable
}
