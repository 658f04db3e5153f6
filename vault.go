package blobvault

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/absfs/absfs"
	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Store. The host constructs exactly one Store per
// vault directory with injected configuration; there is no hidden global
// state.
type Options struct {
	// FS is the backing filesystem
	FS absfs.FileSystem

	// Dir is the vault directory holding the container and index files
	Dir string

	// ContainerSize is the fixed total container size (default 500 MiB).
	// The container is never resized after creation.
	ContainerSize int64

	// Cipher selects the AEAD suite for file content (default AES-256-GCM)
	Cipher CipherSuite

	// ChunkSize is the streaming chunk size (default 1 MiB)
	ChunkSize uint32

	// StreamThreshold is the plaintext size above which content streams
	// (default 4 MiB)
	StreamThreshold int64

	// Logger receives structured log events. Nil means no logging.
	Logger *zerolog.Logger
}

// Validate checks if the options are valid and applies defaults
func (o *Options) Validate() error {
	if o == nil {
		return NewConfigError("options", "options cannot be nil")
	}
	if o.FS == nil {
		return NewConfigError("fs", "filesystem cannot be nil")
	}
	if o.Dir == "" {
		return NewConfigError("dir", "vault directory cannot be empty")
	}
	if o.ContainerSize == 0 {
		o.ContainerSize = DefaultContainerSize
	}
	if o.ContainerSize < cursorRecordSize+FileHeaderSize {
		return NewConfigError("containerSize", fmt.Sprintf("container size %d too small", o.ContainerSize))
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if err := ValidateChunkSize(o.ChunkSize); err != nil {
		return NewConfigError("chunkSize", err.Error())
	}
	if o.StreamThreshold == 0 {
		o.StreamThreshold = DefaultStreamThreshold
	}
	if o.StreamThreshold < 0 {
		return NewConfigError("streamThreshold", "threshold cannot be negative")
	}
	return nil
}

// Store is the vault engine: one container, any number of per-fingerprint
// encrypted indexes, and the share transfer machinery.
type Store struct {
	fs        absfs.FileSystem
	dir       string
	opts      Options
	container *Container
	log       zerolog.Logger
	events    chan ProgressEvent
	keep      KeepActive

	mu      sync.Mutex
	fpLocks map[string]*sync.Mutex
	closed  bool
}

// Open creates a Store over the given options. Container initialization
// (allocation and random fill on first run) starts immediately but runs
// off the critical path; operations needing the container block on its
// readiness gate.
func Open(opts *Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	if err := opts.FS.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, NewTransientError("mkdir", err)
	}

	container, err := NewContainer(opts.FS, path.Join(opts.Dir, "container.blob"), opts.ContainerSize, log)
	if err != nil {
		return nil, err
	}

	s := &Store{
		fs:        opts.FS,
		dir:       opts.Dir,
		opts:      *opts,
		container: container,
		log:       log,
		events:    make(chan ProgressEvent, 256),
		fpLocks:   make(map[string]*sync.Mutex),
	}

	container.SetFillProgress(func(done, total int64) {
		s.emit(ProgressEvent{Kind: ProgressFill, Done: done, Total: total})
	})
	container.Init()

	return s, nil
}

// Events returns the progress event stream. The host drains it on its own
// schedule; events are dropped, never blocked on, when nobody is reading.
func (s *Store) Events() <-chan ProgressEvent {
	return s.events
}

// KeepActive returns the store's keep-active counter
func (s *Store) KeepActive() *KeepActive {
	return &s.keep
}

// Container exposes the underlying container, mainly for readiness waits
func (s *Store) Container() *Container {
	return s.container
}

// Close releases the container. In-flight initialization is waited for.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.container.Close()
}

// fpLock returns the single-writer lock for one fingerprint. All index
// read-modify-write cycles are serialized through it.
func (s *Store) fpLock(fp string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.fpLocks[fp]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.fpLocks[fp] = l
	return l
}

func (s *Store) indexPath(fp string) string {
	return path.Join(s.dir, fp+".idx")
}

// LoadIndex locates the index for key by fingerprint. If no index file
// exists, or the file cannot be decrypted, a fresh empty index is
// returned: probing with a wrong key is observably identical to "no vault
// exists here". That is a deliberate property, not an omission.
func (s *Store) LoadIndex(key []byte) (*VaultIndex, error) {
	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()
	return s.loadIndexLocked(fp, key)
}

func (s *Store) loadIndexLocked(fp string, key []byte) (*VaultIndex, error) {
	data, err := s.readFile(s.indexPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return newVaultIndex(key)
		}
		return nil, NewTransientError("read", err)
	}

	idx, err := decodeIndex(data, key)
	if err != nil {
		if IsConfigError(err) {
			return nil, err
		}
		// Wrong key or corrupt payload: indistinguishable from an empty
		// vault at this boundary.
		s.log.Debug().Str("fingerprint", fp).Msg("index did not decrypt, synthesizing empty vault")
		return newVaultIndex(key)
	}

	migrated, err := migrateIndex(idx, key)
	if err != nil {
		return nil, err
	}
	if migrated {
		if err := s.saveIndexLocked(fp, idx, key); err != nil {
			return nil, err
		}
		s.log.Info().Str("fingerprint", fp).Int("version", idx.Version).Msg("index migrated")
	}
	return idx, nil
}

// SaveIndex seals and persists an index under key, atomically and durably
func (s *Store) SaveIndex(idx *VaultIndex, key []byte) error {
	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()
	return s.saveIndexLocked(fp, idx, key)
}

func (s *Store) saveIndexLocked(fp string, idx *VaultIndex, key []byte) error {
	sealed, err := encodeIndex(idx, key)
	if err != nil {
		return err
	}
	return s.writeFileAtomic(s.indexPath(fp), sealed)
}

// readFile reads a whole file through the backing filesystem
func (s *Store) readFile(name string) ([]byte, error) {
	f, err := s.fs.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeFileAtomic writes data to a temp file, syncs it, and renames it
// into place so readers never observe a partial index
func (s *Store) writeFileAtomic(name string, data []byte) error {
	tmp := name + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return NewTransientError("write", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return NewTransientError("write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return NewTransientError("sync", err)
	}
	if err := f.Close(); err != nil {
		return NewTransientError("close", err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		return NewTransientError("rename", err)
	}
	return nil
}

// unwrapMaster decrypts the index's MasterKey into a locked buffer. The
// caller must Destroy the buffer on every exit path; the MasterKey exists
// unencrypted only inside it.
func (s *Store) unwrapMaster(idx *VaultIndex, key []byte) (*memguard.LockedBuffer, error) {
	raw, err := Decrypt(idx.EncryptedMasterKey, key)
	if err != nil {
		return nil, NewIntegrityError("master key", ErrAuthentication)
	}
	return memguard.NewBufferFromBytes(raw), nil
}

// containerWriter writes sequentially into the container from a fixed
// offset
type containerWriter struct {
	c   *Container
	off int64
}

func (w *containerWriter) Write(p []byte) (int, error) {
	if err := w.c.WriteAt(p, w.off); err != nil {
		return 0, err
	}
	w.off += int64(len(p))
	return len(p), nil
}

// containerReader reads sequentially from a container region
type containerReader struct {
	c      *Container
	off    int64
	remain int64
}

func (r *containerReader) Read(p []byte) (int, error) {
	if r.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	buf, err := r.c.ReadAt(r.off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	copy(p, buf)
	r.off += int64(len(buf))
	r.remain -= int64(len(buf))
	return len(buf), nil
}

// StoreFile encrypts content under the vault's MasterKey and stores it in
// the container, then rewrites the index. Returns the new entry.
func (s *Store) StoreFile(content []byte, filename, mimeType string, key []byte, thumbnail []byte) (*FileEntry, error) {
	return s.StoreFileFrom(bytes.NewReader(content), int64(len(content)), filename, mimeType, key, thumbnail)
}

// StoreFileFrom is StoreFile reading content from src. Content larger than
// the stream threshold is encrypted chunk by chunk, bounding peak memory
// to roughly one chunk regardless of file size.
func (s *Store) StoreFileFrom(src io.Reader, size int64, filename, mimeType string, key []byte, thumbnail []byte) (*FileEntry, error) {
	release := s.keep.Acquire()
	defer release()

	if size < 0 {
		return nil, NewConfigError("size", "content size cannot be negative")
	}
	if err := s.container.WaitReady(); err != nil {
		return nil, err
	}

	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return nil, err
	}

	master, err := s.unwrapMaster(idx, key)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	engine, err := NewCipherEngine(s.opts.Cipher, master.Bytes())
	if err != nil {
		return nil, err
	}

	hdr := NewFileHeader(uint64(size), filename, mimeType)
	ctSize := FileCiphertextSize(size, s.opts.StreamThreshold, s.opts.ChunkSize)

	offset, err := s.container.Allocate(ctSize, idx.NextOffset)
	if err != nil {
		return nil, err
	}

	fileID := hdr.FileID.String()
	w := &containerWriter{c: s.container, off: offset}
	err = EncryptFileTo(w, src, hdr, engine, s.opts.StreamThreshold, s.opts.ChunkSize, func(done int64) {
		s.emit(ProgressEvent{Kind: ProgressStore, ID: fileID, Done: done, Total: size})
	})
	if err != nil {
		return nil, err
	}
	if w.off-offset != ctSize {
		return nil, fmt.Errorf("ciphertext size mismatch: wrote %d, expected %d", w.off-offset, ctSize)
	}
	if err := s.container.Sync(); err != nil {
		return nil, err
	}

	// Short ciphertext preview: the leading content ciphertext bytes, for
	// diagnostics without decryption.
	previewLen := int64(32)
	contentStart := offset + 4 + SingleShotSize(FileHeaderSize)
	if avail := offset + ctSize - contentStart; avail < previewLen {
		previewLen = avail
	}
	var preview string
	if previewLen > 0 {
		pv, err := s.container.ReadAt(contentStart, previewLen)
		if err == nil {
			preview = hex.EncodeToString(pv)
		}
	}

	var sealedThumb []byte
	if len(thumbnail) > 0 {
		sealedThumb, err = encryptWithEngine(engine, thumbnail)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt thumbnail: %w", err)
		}
	}

	entry := FileEntry{
		ID:        hdr.FileID,
		Offset:    offset,
		Size:      ctSize,
		Preview:   preview,
		Thumbnail: sealedThumb,
		MimeType:  mimeType,
		Filename:  filename,
		CreatedAt: hdr.CreatedAt,
	}
	idx.Files = append(idx.Files, entry)
	idx.NextOffset = offset + ctSize

	if err := s.saveIndexLocked(fp, idx, key); err != nil {
		return nil, err
	}

	s.log.Debug().Str("file", fileID).Int64("offset", offset).Int64("size", ctSize).Msg("file stored")
	return &entry, nil
}

// RetrieveFile decrypts and returns a stored file's content
func (s *Store) RetrieveFile(id uuid.UUID, key []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := s.RetrieveFileTo(buf, id, key); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RetrieveFileTo decrypts a stored file's content into dst and returns
// its header
func (s *Store) RetrieveFileTo(dst io.Writer, id uuid.UUID, key []byte) (*FileHeader, error) {
	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()
	return s.retrieveLocked(dst, id, fp, key)
}

func (s *Store) retrieveLocked(dst io.Writer, id uuid.UUID, fp string, key []byte) (*FileHeader, error) {
	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return nil, err
	}

	entry := idx.findEntry(id)
	if entry == nil {
		return nil, ErrFileNotFound
	}

	master, err := s.unwrapMaster(idx, key)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	engine, err := NewCipherEngine(s.opts.Cipher, master.Bytes())
	if err != nil {
		return nil, err
	}

	fileID := id.String()
	r := &containerReader{c: s.container, off: entry.Offset, remain: entry.Size}
	hdr, err := DecryptFileFrom(dst, r, engine, s.opts.StreamThreshold, func(done, total int64) {
		s.emit(ProgressEvent{Kind: ProgressRetrieve, ID: fileID, Done: done, Total: total})
	})
	if err != nil {
		return nil, err
	}
	if hdr.FileID != id {
		return nil, NewIntegrityError("file", fmt.Errorf("header file ID %s does not match entry %s", hdr.FileID, id))
	}
	return hdr, nil
}

// DeleteFile tombstones an entry and overwrites its container region with
// fresh random bytes. The tombstone commit comes first: a failed overwrite
// is logged but does not block it, since secrecy rests on the AEAD, not on
// overwrite success.
func (s *Store) DeleteFile(id uuid.UUID, key []byte) error {
	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return err
	}

	entry := idx.findEntry(id)
	if entry == nil {
		return ErrFileNotFound
	}

	offset, size := entry.Offset, entry.Size
	entry.Deleted = true
	entry.Thumbnail = nil
	entry.Preview = ""

	if err := s.saveIndexLocked(fp, idx, key); err != nil {
		return err
	}

	if err := s.container.Free(offset, size); err != nil {
		s.log.Warn().Err(err).Str("file", id.String()).Msg("secure region overwrite failed")
	}
	return nil
}

// ListFiles returns the live (non-tombstoned) entries in insertion order
func (s *Store) ListFiles(key []byte) ([]FileEntry, error) {
	idx, err := s.LoadIndex(key)
	if err != nil {
		return nil, err
	}
	return idx.liveFiles(), nil
}

// RetrieveThumbnail decrypts an entry's thumbnail, if it has one
func (s *Store) RetrieveThumbnail(id uuid.UUID, key []byte) ([]byte, error) {
	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return nil, err
	}
	entry := idx.findEntry(id)
	if entry == nil {
		return nil, ErrFileNotFound
	}
	if len(entry.Thumbnail) == 0 {
		return nil, nil
	}

	master, err := s.unwrapMaster(idx, key)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	engine, err := NewCipherEngine(s.opts.Cipher, master.Bytes())
	if err != nil {
		return nil, err
	}
	return decryptWithEngine(engine, entry.Thumbnail)
}

// ChangeVaultKey rewraps the MasterKey under newKey and moves the index to
// newKey's fingerprint. File data is untouched; cost is independent of
// vault size. Fails with ErrVaultAlreadyExists if newKey's fingerprint
// already has a distinct vault.
func (s *Store) ChangeVaultKey(oldKey, newKey []byte) error {
	oldFp := Fingerprint(oldKey)
	newFp := Fingerprint(newKey)
	if oldFp == newFp {
		return nil
	}

	// Deterministic ordering so concurrent rotations cannot deadlock.
	fps := []string{oldFp, newFp}
	sort.Strings(fps)
	for _, fp := range fps {
		l := s.fpLock(fp)
		l.Lock()
		defer l.Unlock()
	}

	if _, err := s.fs.Stat(s.indexPath(newFp)); err == nil {
		return ErrVaultAlreadyExists
	}

	idx, err := s.loadIndexLocked(oldFp, oldKey)
	if err != nil {
		return err
	}

	master, err := s.unwrapMaster(idx, oldKey)
	if err != nil {
		return err
	}
	rewrapped, err := Encrypt(master.Bytes(), newKey)
	master.Destroy()
	if err != nil {
		return fmt.Errorf("failed to rewrap master key: %w", err)
	}

	idx.EncryptedMasterKey = rewrapped
	if err := s.saveIndexLocked(newFp, idx, newKey); err != nil {
		return err
	}

	if err := s.fs.Remove(s.indexPath(oldFp)); err != nil && !os.IsNotExist(err) {
		return NewTransientError("remove", err)
	}

	s.log.Info().Str("from", oldFp).Str("to", newFp).Msg("vault key changed")
	return nil
}

// VerifyFile decrypts a stored file and discards the output, confirming
// the ciphertext still authenticates end to end
func (s *Store) VerifyFile(id uuid.UUID, key []byte) error {
	_, err := s.RetrieveFileTo(io.Discard, id, key)
	return err
}

// VerifyAll verifies every live file, returning the IDs that failed
func (s *Store) VerifyAll(key []byte) ([]uuid.UUID, error) {
	entries, err := s.ListFiles(key)
	if err != nil {
		return nil, err
	}

	var failed []uuid.UUID
	for _, e := range entries {
		if err := s.VerifyFile(e.ID, key); err != nil {
			failed = append(failed, e.ID)
		}
	}
	if len(failed) > 0 {
		return failed, fmt.Errorf("%d files failed verification", len(failed))
	}
	return nil, nil
}
