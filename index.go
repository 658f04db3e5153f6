package blobvault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Vault index
//
// One encrypted manifest exists per key fingerprint. The on-disk payload
// is AEAD(serialized manifest) with no plaintext framing at all, so a
// manifest that fails to decrypt is indistinguishable from garbage.

const (
	// IndexVersionLegacy is the pre-indirection format: files were sealed
	// directly under the vault key and no wrapped MasterKey existed
	IndexVersionLegacy = 1

	// IndexVersionCurrent is the current index format
	IndexVersionCurrent = 2
)

// FileEntry describes one stored file. Deleted entries are tombstoned and
// retained, never physically removed from the manifest.
type FileEntry struct {
	ID        uuid.UUID `json:"id"`
	Offset    int64     `json:"offset"`
	Size      int64     `json:"size"` // ciphertext length in the container
	Preview   string    `json:"preview,omitempty"` // hex of the leading ciphertext bytes
	Deleted   bool      `json:"deleted,omitempty"`
	Thumbnail []byte    `json:"thumbnail,omitempty"` // encrypted under the MasterKey
	MimeType  string    `json:"mimeType,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt float64   `json:"createdAt"` // unix seconds
}

// SharePolicy controls how a share may be consumed
type SharePolicy struct {
	ExpiresAt        time.Time `json:"expiresAt,omitempty"` // zero = no expiry
	MaxOpens         int       `json:"maxOpens,omitempty"`  // 0 = unlimited
	AllowScreenshots bool      `json:"allowScreenshots"`
	AllowDownloads   bool      `json:"allowDownloads"`
}

// ShareRecord is the owner-side bookkeeping for one share
type ShareRecord struct {
	ID        string      `json:"id"` // share key fingerprint
	CreatedAt time.Time   `json:"createdAt"`
	Policy    SharePolicy `json:"policy"`
	LastSync  time.Time   `json:"lastSync,omitempty"`
	KeySealed []byte      `json:"keySealed"` // share key encrypted under the MasterKey
	Legacy    bool        `json:"legacy,omitempty"`
}

// VaultIndex is the per-fingerprint manifest
type VaultIndex struct {
	Version            int           `json:"version"`
	Files              []FileEntry   `json:"files"`
	NextOffset         int64         `json:"nextOffset"`
	EncryptedMasterKey []byte        `json:"encryptedMasterKey,omitempty"`
	Shares             []ShareRecord `json:"shares,omitempty"`
}

// newVaultIndex synthesizes a fresh empty index with a newly generated
// MasterKey wrapped under key
func newVaultIndex(key []byte) (*VaultIndex, error) {
	master, err := RandomBytes(KeySize)
	if err != nil {
		return nil, NewTransientError("keygen", err)
	}
	defer wipe(master)

	wrapped, err := Encrypt(master, key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap master key: %w", err)
	}

	return &VaultIndex{
		Version:            IndexVersionCurrent,
		Files:              []FileEntry{},
		EncryptedMasterKey: wrapped,
	}, nil
}

// findEntry returns the live entry with the given ID, or nil
func (idx *VaultIndex) findEntry(id uuid.UUID) *FileEntry {
	for i := range idx.Files {
		if idx.Files[i].ID == id && !idx.Files[i].Deleted {
			return &idx.Files[i]
		}
	}
	return nil
}

// findShare returns the share record with the given ID, or nil
func (idx *VaultIndex) findShare(shareID string) *ShareRecord {
	for i := range idx.Shares {
		if idx.Shares[i].ID == shareID {
			return &idx.Shares[i]
		}
	}
	return nil
}

// liveFiles returns the entries not marked deleted, in insertion order
func (idx *VaultIndex) liveFiles() []FileEntry {
	out := make([]FileEntry, 0, len(idx.Files))
	for _, e := range idx.Files {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

// encodeIndex serializes and seals the manifest under key
func encodeIndex(idx *VaultIndex, key []byte) ([]byte, error) {
	payload, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize index: %w", err)
	}
	return Encrypt(payload, key)
}

// decodeIndex opens and deserializes a sealed manifest. A wrong key
// surfaces as the AEAD integrity error; callers translate that to "no
// vault exists here".
func decodeIndex(data, key []byte) (*VaultIndex, error) {
	payload, err := Decrypt(data, key)
	if err != nil {
		return nil, err
	}

	idx := &VaultIndex{}
	if err := json.Unmarshal(payload, idx); err != nil {
		return nil, NewIntegrityError("index", fmt.Errorf("malformed manifest: %w", err))
	}
	// The payload authenticated, so a version above current is a manifest
	// written by a newer release, not a wrong key. Refusing to open keeps a
	// later save from clobbering it.
	if idx.Version > IndexVersionCurrent {
		return nil, NewConfigError("index", fmt.Sprintf("manifest version %d is newer than supported version %d", idx.Version, IndexVersionCurrent))
	}
	if idx.Version < IndexVersionLegacy {
		return nil, NewIntegrityError("index", ErrUnsupportedFormat)
	}
	if idx.Files == nil {
		idx.Files = []FileEntry{}
	}
	return idx, nil
}

// migrateIndex upgrades an older-format index in place. Reports whether
// anything changed so the caller can persist the upgraded form before
// returning it.
//
// A v1 vault has no MasterKey indirection: its files were sealed directly
// under the vault key. The synthesized MasterKey is therefore the vault
// key itself (wrapped under the vault key) so existing ciphertext stays
// readable.
func migrateIndex(idx *VaultIndex, key []byte) (bool, error) {
	if idx.Version >= IndexVersionCurrent {
		return false, nil
	}

	if len(idx.EncryptedMasterKey) == 0 {
		wrapped, err := Encrypt(key, key)
		if err != nil {
			return false, fmt.Errorf("failed to synthesize master key: %w", err)
		}
		idx.EncryptedMasterKey = wrapped
	}
	idx.Version = IndexVersionCurrent
	return true, nil
}

// wipe zeroes a byte slice holding key material
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
