package blobvault

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names
var (
	relayMetaBucket   = []byte("meta")
	relayChunksBucket = []byte("chunks")
)

// BoltRelay is a Relay backed by a local BoltDB file. It is the reference
// relay implementation: the chi server wraps one for self-hosting, and
// tests use it directly.
type BoltRelay struct {
	db *bbolt.DB
}

// OpenBoltRelay opens (or creates) a relay database at path
func OpenBoltRelay(path string) (*BoltRelay, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, NewTransientError("open", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(relayMetaBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(relayChunksBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, NewTransientError("init", err)
	}

	return &BoltRelay{db: db}, nil
}

// Close closes the relay database
func (r *BoltRelay) Close() error {
	return r.db.Close()
}

func chunkKey(index uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], index)
	return k[:]
}

func (r *BoltRelay) readMeta(tx *bbolt.Tx, shareID string) (*ShareMeta, error) {
	raw := tx.Bucket(relayMetaBucket).Get([]byte(shareID))
	if raw == nil {
		return nil, ErrShareNotFound
	}
	meta := &ShareMeta{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("malformed share metadata: %w", err)
	}
	return meta, nil
}

func (r *BoltRelay) writeMeta(tx *bbolt.Tx, meta *ShareMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return tx.Bucket(relayMetaBucket).Put([]byte(meta.ShareID), raw)
}

// storedChunks counts the chunks present for a share
func (r *BoltRelay) storedChunks(tx *bbolt.Tx, shareID string) uint32 {
	b := tx.Bucket(relayChunksBucket).Bucket([]byte(shareID))
	if b == nil {
		return 0
	}
	var n uint32
	b.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n
}

// CreateShare registers a share. Re-creating an existing unconsumed share
// resets its metadata, which lets an owner restart an abandoned upload.
func (r *BoltRelay) CreateShare(ctx context.Context, meta ShareMeta) error {
	if meta.ShareID == "" {
		return NewConfigError("shareId", "share ID cannot be empty")
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		if existing, err := r.readMeta(tx, meta.ShareID); err == nil && existing.Consumed {
			return ErrShareConsumed
		}
		return r.writeMeta(tx, &meta)
	})
}

// UploadChunk stores one chunk by index
func (r *BoltRelay) UploadChunk(ctx context.Context, shareID string, index uint32, data []byte) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		meta, err := r.readMeta(tx, shareID)
		if err != nil {
			return err
		}
		if meta.Consumed {
			return ErrShareConsumed
		}
		if index >= meta.TotalChunks {
			return NewConfigError("index", fmt.Sprintf("chunk index %d out of range (total %d)", index, meta.TotalChunks))
		}

		b, err := tx.Bucket(relayChunksBucket).CreateBucketIfNotExists([]byte(shareID))
		if err != nil {
			return err
		}
		return b.Put(chunkKey(index), data)
	})
}

// FinishUpload marks the share's data complete once every chunk is present
func (r *BoltRelay) FinishUpload(ctx context.Context, shareID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		meta, err := r.readMeta(tx, shareID)
		if err != nil {
			return err
		}
		if stored := r.storedChunks(tx, shareID); stored < meta.TotalChunks {
			return &TransientError{Operation: "finish", Message: fmt.Sprintf("only %d of %d chunks uploaded", stored, meta.TotalChunks), Err: ErrShareIncomplete}
		}
		meta.Complete = true
		return r.writeMeta(tx, meta)
	})
}

// Metadata returns a share's metadata
func (r *BoltRelay) Metadata(ctx context.Context, shareID string) (*ShareMeta, error) {
	var meta *ShareMeta
	err := r.db.View(func(tx *bbolt.Tx) error {
		m, err := r.readMeta(tx, shareID)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	return meta, err
}

// DownloadChunk fetches one chunk by index
func (r *BoltRelay) DownloadChunk(ctx context.Context, shareID string, index uint32) ([]byte, error) {
	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		if _, err := r.readMeta(tx, shareID); err != nil {
			return err
		}
		b := tx.Bucket(relayChunksBucket).Bucket([]byte(shareID))
		if b == nil {
			return ErrShareIncomplete
		}
		raw := b.Get(chunkKey(index))
		if raw == nil {
			return ErrShareIncomplete
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	return data, err
}

// CheckAvailability reports whether the share is claimable, requiring the
// backing data to be fully present
func (r *BoltRelay) CheckAvailability(ctx context.Context, shareID string) (Availability, error) {
	avail := AvailabilityNotFound
	err := r.db.View(func(tx *bbolt.Tx) error {
		meta, err := r.readMeta(tx, shareID)
		if err != nil {
			if err == ErrShareNotFound {
				return nil
			}
			return err
		}
		avail = availabilityOf(meta, r.storedChunks(tx, shareID), time.Now())
		return nil
	})
	return avail, err
}

// MarkConsumed atomically transitions the share to consumed. The check and
// the write share one update transaction, so exactly one recipient wins.
func (r *BoltRelay) MarkConsumed(ctx context.Context, shareID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		meta, err := r.readMeta(tx, shareID)
		if err != nil {
			return err
		}
		if meta.Consumed {
			return ErrShareConsumed
		}
		meta.Consumed = true
		meta.Opens++
		return r.writeMeta(tx, meta)
	})
}

// Revoke deletes the share and its chunks. Idempotent.
func (r *BoltRelay) Revoke(ctx context.Context, shareID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(relayMetaBucket).Delete([]byte(shareID)); err != nil {
			return err
		}
		if tx.Bucket(relayChunksBucket).Bucket([]byte(shareID)) != nil {
			if err := tx.Bucket(relayChunksBucket).DeleteBucket([]byte(shareID)); err != nil {
				return err
			}
		}
		return nil
	})
}
