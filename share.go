package blobvault

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
)

// Share transfer protocol
//
// The owner encrypts a full export of the vault's current contents under a
// key derived from a one-time phrase, splits the ciphertext into
// relay-sized chunks, and uploads them. The recipient derives the same key
// from the phrase alone, downloads and reassembles the chunks strictly by
// index, decrypts the export, and imports the files into a fresh vault
// keyed by its own independently chosen unlock secret. The share key is
// used only transiently for the payload, never as the new vault's key.
//
// Both sides persist a checkpoint after every completed unit of work
// (chunk uploaded, chunk downloaded, file imported), so a restart resumes
// from the last unit rather than starting over.

const (
	// DefaultRelayChunkSize is the relay transfer chunk size (256 KiB)
	DefaultRelayChunkSize = 256 << 10

	// exportMagic identifies a share export payload ("BVEX")
	exportMagic = uint32(0x42564558)

	// exportVersion is the current export format version
	exportVersion = uint8(1)

	// transferRetries is how many times a transient relay failure is
	// retried before the transfer parks as resumable
	transferRetries = 3
)

// OwnerState is the owner-side transfer state
type OwnerState uint8

const (
	OwnerIdle OwnerState = iota
	OwnerPhraseReady
	OwnerUploading
	OwnerUploadComplete
	OwnerUploadFailed
)

// RecipientState is the recipient-side transfer state
type RecipientState uint8

const (
	RecipientIdle RecipientState = iota
	RecipientDownloading
	RecipientDownloadComplete
	RecipientLocalSetup
	RecipientReady
	RecipientFailed
)

// exportFileMeta describes one file inside an export payload
type exportFileMeta struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

// transferCheckpoint is the persisted resume state for one transfer
type transferCheckpoint struct {
	ShareID     string   `json:"shareId"`
	Direction   string   `json:"direction"` // "upload" or "download"
	ChunksDone  uint32   `json:"chunksDone"`
	TotalChunks uint32   `json:"totalChunks"`
	ChunkSize   uint32   `json:"chunkSize"`
	TotalSize   int64    `json:"totalSize"`
	Imported    []string `json:"imported,omitempty"` // export file IDs fully imported
}

func (s *Store) spoolPath(shareID string) string {
	return path.Join(s.dir, "share-"+shareID+".spool")
}

func (s *Store) checkpointPath(shareID string) string {
	return path.Join(s.dir, "share-"+shareID+".ckpt")
}

func (s *Store) saveCheckpoint(ckpt *transferCheckpoint) error {
	raw, err := json.Marshal(ckpt)
	if err != nil {
		return err
	}
	return s.writeFileAtomic(s.checkpointPath(ckpt.ShareID), raw)
}

func (s *Store) loadCheckpoint(shareID string) (*transferCheckpoint, error) {
	raw, err := s.readFile(s.checkpointPath(shareID))
	if err != nil {
		return nil, err
	}
	ckpt := &transferCheckpoint{}
	if err := json.Unmarshal(raw, ckpt); err != nil {
		return nil, fmt.Errorf("malformed checkpoint: %w", err)
	}
	return ckpt, nil
}

func (s *Store) removeTransferState(shareID string) {
	s.fs.Remove(s.spoolPath(shareID))
	s.fs.Remove(s.checkpointPath(shareID))
}

// withRetry runs op, retrying transient failures with doubling backoff.
// Non-transient errors and context cancellation stop immediately.
func withRetry(ctx context.Context, op func() error) error {
	delay := 250 * time.Millisecond
	var err error
	for attempt := 0; attempt < transferRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(); err == nil || !IsTransientError(err) {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

// OwnerShare drives the owner side of one transfer
type OwnerShare struct {
	store    *Store
	relay    Relay
	vaultKey []byte

	// Phrase is the one-time share phrase. Populated only by
	// InitiateShare; resumed transfers do not need it.
	Phrase  string
	ShareID string

	state OwnerState
	ckpt  *transferCheckpoint
}

// State returns the owner-side transfer state
func (o *OwnerShare) State() OwnerState {
	return o.state
}

// readEntryHeader decrypts only an entry's fixed header, without touching
// its content
func (s *Store) readEntryHeader(entry *FileEntry, engine CipherEngine) (*FileHeader, error) {
	headerRegion := 4 + SingleShotSize(FileHeaderSize)
	raw, err := s.container.ReadAt(entry.Offset, headerRegion)
	if err != nil {
		return nil, err
	}
	ctLen := binary.LittleEndian.Uint32(raw[:4])
	if int64(ctLen) != SingleShotSize(FileHeaderSize) {
		return nil, NewIntegrityError("file", ErrCorruptHeader)
	}
	plain, err := decryptWithEngine(engine, raw[4:])
	if err != nil {
		return nil, err
	}
	return DecodeFileHeader(plain)
}

// decryptEntryTo decrypts an entry's content into dst. Callers hold the
// fingerprint lock.
func (s *Store) decryptEntryTo(dst io.Writer, entry *FileEntry, engine CipherEngine) (*FileHeader, error) {
	r := &containerReader{c: s.container, off: entry.Offset, remain: entry.Size}
	return DecryptFileFrom(dst, r, engine, s.opts.StreamThreshold, nil)
}

// InitiateShare prepares a one-time share of the vault's current live
// contents. customPhrase may be empty to generate one. The export is
// encrypted under the phrase-derived share key and spooled locally; call
// Upload on the returned OwnerShare to move it to the relay.
func (s *Store) InitiateShare(ctx context.Context, key []byte, relay Relay, policy SharePolicy, customPhrase string) (*OwnerShare, error) {
	release := s.keep.Acquire()
	defer release()

	phrase := customPhrase
	if phrase == "" {
		var err error
		phrase, err = GeneratePhrase()
		if err != nil {
			return nil, err
		}
	}
	if err := ValidatePhrase(phrase); err != nil {
		return nil, err
	}

	shareKey := DeriveShareKey(phrase)
	defer wipe(shareKey)
	shareID := Fingerprint(shareKey)

	// Share payloads always use the default suite so any recipient build
	// can decrypt them regardless of local cipher configuration.
	shareEngine, err := NewCipherEngine(CipherAuto, shareKey)
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	if err := s.container.WaitReady(); err != nil {
		return nil, err
	}

	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return nil, err
	}

	master, err := s.unwrapMaster(idx, key)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	masterEngine, err := NewCipherEngine(s.opts.Cipher, master.Bytes())
	if err != nil {
		return nil, err
	}

	totalSize, err := s.buildShareSpool(shareID, idx.liveFiles(), masterEngine, shareEngine)
	if err != nil {
		return nil, err
	}

	totalChunks := uint32((totalSize + DefaultRelayChunkSize - 1) / DefaultRelayChunkSize)
	meta := ShareMeta{
		ShareID:          shareID,
		TotalChunks:      totalChunks,
		ChunkSize:        DefaultRelayChunkSize,
		TotalSize:        totalSize,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        policy.ExpiresAt,
		MaxOpens:         policy.MaxOpens,
		AllowScreenshots: policy.AllowScreenshots,
		AllowDownloads:   policy.AllowDownloads,
	}
	if err := withRetry(ctx, func() error { return relay.CreateShare(ctx, meta) }); err != nil {
		return nil, err
	}

	sealedShareKey, err := encryptWithEngine(masterEngine, shareKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal share key: %w", err)
	}
	idx.Shares = append(idx.Shares, ShareRecord{
		ID:        shareID,
		CreatedAt: meta.CreatedAt,
		Policy:    policy,
		KeySealed: sealedShareKey,
	})
	if err := s.saveIndexLocked(fp, idx, key); err != nil {
		return nil, err
	}

	ckpt := &transferCheckpoint{
		ShareID:     shareID,
		Direction:   "upload",
		TotalChunks: totalChunks,
		ChunkSize:   DefaultRelayChunkSize,
		TotalSize:   totalSize,
	}
	if err := s.saveCheckpoint(ckpt); err != nil {
		return nil, err
	}

	s.log.Info().Str("share", shareID).Str("phrase", phraseChecksum(phrase)).Uint32("chunks", totalChunks).Msg("share initiated")
	return &OwnerShare{
		store:    s,
		relay:    relay,
		vaultKey: append([]byte(nil), key...),
		Phrase:   phrase,
		ShareID:  shareID,
		state:    OwnerPhraseReady,
		ckpt:     ckpt,
	}, nil
}

// buildShareSpool writes the encrypted export payload for the given
// entries to the share's local spool file and returns its size
func (s *Store) buildShareSpool(shareID string, entries []FileEntry, masterEngine, shareEngine CipherEngine) (int64, error) {
	metas := make([]exportFileMeta, len(entries))
	metaRaw := make([][]byte, len(entries))
	exportSize := int64(9) // magic + version + file count
	for i := range entries {
		hdr, err := s.readEntryHeader(&entries[i], masterEngine)
		if err != nil {
			return 0, fmt.Errorf("failed to read header of %s: %w", entries[i].ID, err)
		}
		metas[i] = exportFileMeta{
			ID:       entries[i].ID.String(),
			Filename: hdr.Filename,
			MimeType: hdr.MimeType,
			Size:     int64(hdr.OriginalSize),
		}
		raw, err := json.Marshal(metas[i])
		if err != nil {
			return 0, err
		}
		metaRaw[i] = raw
		exportSize += int64(4+len(raw)) + metas[i].Size
	}

	pr, pw := io.Pipe()
	go func() {
		var hdr [9]byte
		binary.LittleEndian.PutUint32(hdr[0:4], exportMagic)
		hdr[4] = exportVersion
		binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(entries)))
		if _, err := pw.Write(hdr[:]); err != nil {
			pw.CloseWithError(err)
			return
		}

		for i := range entries {
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metaRaw[i])))
			if _, err := pw.Write(lenBuf[:]); err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(metaRaw[i]); err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := s.decryptEntryTo(pw, &entries[i], masterEngine); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	spool, err := s.fs.OpenFile(s.spoolPath(shareID), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		pr.CloseWithError(err)
		return 0, NewTransientError("spool", err)
	}

	spoolSize := StreamingSize(exportSize, DefaultChunkSize)
	if err := EncryptStream(spool, pr, exportSize, shareEngine, DefaultChunkSize, nil); err != nil {
		spool.Close()
		pr.CloseWithError(err)
		return 0, err
	}
	if err := spool.Sync(); err != nil {
		spool.Close()
		return 0, NewTransientError("sync", err)
	}
	if err := spool.Close(); err != nil {
		return 0, NewTransientError("close", err)
	}
	return spoolSize, nil
}

// Upload moves remaining chunks to the relay, checkpointing after each.
// On transient failure the transfer parks as resumable; call Upload again
// (or ResumeShare after a restart) to continue from the last completed
// chunk. Cancellation via ctx leaves the checkpoint at the last completed
// chunk, never recording a partial one.
func (o *OwnerShare) Upload(ctx context.Context) error {
	s := o.store
	release := s.keep.Acquire()
	defer release()

	o.state = OwnerUploading

	spool, err := s.fs.OpenFile(s.spoolPath(o.ShareID), os.O_RDONLY, 0)
	if err != nil {
		o.state = OwnerUploadFailed
		return NewTransientError("spool", err)
	}
	defer spool.Close()

	for i := o.ckpt.ChunksDone; i < o.ckpt.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			o.state = OwnerUploadFailed
			return err
		}

		offset := int64(i) * int64(o.ckpt.ChunkSize)
		size := int64(o.ckpt.ChunkSize)
		if remaining := o.ckpt.TotalSize - offset; remaining < size {
			size = remaining
		}
		chunk := make([]byte, size)
		if _, err := spool.ReadAt(chunk, offset); err != nil {
			o.state = OwnerUploadFailed
			return NewTransientError("spool", err)
		}

		idx := i
		if err := withRetry(ctx, func() error { return o.relay.UploadChunk(ctx, o.ShareID, idx, chunk) }); err != nil {
			o.state = OwnerUploadFailed
			return err
		}

		o.ckpt.ChunksDone = i + 1
		if err := s.saveCheckpoint(o.ckpt); err != nil {
			o.state = OwnerUploadFailed
			return err
		}
		s.emit(ProgressEvent{Kind: ProgressUpload, ID: o.ShareID, Done: min(int64(i+1)*int64(o.ckpt.ChunkSize), o.ckpt.TotalSize), Total: o.ckpt.TotalSize})
	}

	if err := withRetry(ctx, func() error { return o.relay.FinishUpload(ctx, o.ShareID) }); err != nil {
		o.state = OwnerUploadFailed
		return err
	}

	o.touchShareRecord()
	s.removeTransferState(o.ShareID)
	o.state = OwnerUploadComplete
	s.log.Info().Str("share", o.ShareID).Msg("share upload complete")
	return nil
}

// touchShareRecord updates the share's LastSync in the owner's index
func (o *OwnerShare) touchShareRecord() {
	s := o.store
	fp := Fingerprint(o.vaultKey)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	idx, err := s.loadIndexLocked(fp, o.vaultKey)
	if err != nil {
		s.log.Warn().Err(err).Str("share", o.ShareID).Msg("failed to load index for share sync update")
		return
	}
	rec := idx.findShare(o.ShareID)
	if rec == nil {
		return
	}
	rec.LastSync = time.Now().UTC()
	if err := s.saveIndexLocked(fp, idx, o.vaultKey); err != nil {
		s.log.Warn().Err(err).Str("share", o.ShareID).Msg("failed to persist share sync time")
	}
}

// ResumeShare reopens an interrupted upload from its persisted checkpoint
func (s *Store) ResumeShare(ctx context.Context, key []byte, relay Relay, shareID string) (*OwnerShare, error) {
	ckpt, err := s.loadCheckpoint(shareID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrShareNotFound
		}
		return nil, NewTransientError("checkpoint", err)
	}
	if ckpt.Direction != "upload" {
		return nil, NewConfigError("shareId", "checkpoint is not an upload")
	}

	return &OwnerShare{
		store:    s,
		relay:    relay,
		vaultKey: append([]byte(nil), key...),
		ShareID:  shareID,
		state:    OwnerUploading,
		ckpt:     ckpt,
	}, nil
}

// RevokeShare deletes a share's relay data and its local bookkeeping.
// Idempotent and safe even if the index record was already removed.
func (s *Store) RevokeShare(ctx context.Context, key []byte, relay Relay, shareID string) error {
	if err := withRetry(ctx, func() error { return relay.Revoke(ctx, shareID) }); err != nil {
		return err
	}

	fp := Fingerprint(key)
	l := s.fpLock(fp)
	l.Lock()
	defer l.Unlock()

	idx, err := s.loadIndexLocked(fp, key)
	if err != nil {
		return err
	}
	kept := idx.Shares[:0]
	removed := false
	for _, rec := range idx.Shares {
		if rec.ID == shareID {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	if removed {
		idx.Shares = kept
		if err := s.saveIndexLocked(fp, idx, key); err != nil {
			return err
		}
	}

	s.removeTransferState(shareID)
	s.log.Info().Str("share", shareID).Msg("share revoked")
	return nil
}

// CheckShareAvailability reports whether a phrase's share is claimable
// without committing any local state
func CheckShareAvailability(ctx context.Context, relay Relay, phrase string) (Availability, error) {
	if err := ValidatePhrase(phrase); err != nil {
		return AvailabilityNotFound, err
	}
	shareKey := DeriveShareKey(phrase)
	defer wipe(shareKey)
	return relay.CheckAvailability(ctx, Fingerprint(shareKey))
}

// ImportResult summarizes a completed share import
type ImportResult struct {
	ShareID  string
	State    RecipientState
	Imported []uuid.UUID // local IDs of the imported files
	Legacy   bool        // payload was decrypted with the legacy share key
}

// ImportShare claims a share: downloads its chunks, decrypts the export
// with the phrase-derived key, and imports the files into this store's
// vault under localKey. localKey is the recipient's own independently
// chosen unlock secret; the share key is never used as a vault key. On
// success the share is marked consumed at the relay so no second
// recipient can claim the phrase.
func (s *Store) ImportShare(ctx context.Context, relay Relay, phrase string, localKey []byte) (*ImportResult, error) {
	release := s.keep.Acquire()
	defer release()

	if err := ValidatePhrase(phrase); err != nil {
		return nil, err
	}

	shareKey := DeriveShareKey(phrase)
	defer wipe(shareKey)
	shareID := Fingerprint(shareKey)
	result := &ImportResult{ShareID: shareID, State: RecipientIdle}

	ckpt, err := s.loadCheckpoint(shareID)
	if err != nil {
		if !os.IsNotExist(err) {
			return result, NewTransientError("checkpoint", err)
		}
		// Fresh claim: commit nothing locally until the share is known
		// to be complete and claimable.
		avail, aerr := relay.CheckAvailability(ctx, shareID)
		if aerr != nil {
			return result, aerr
		}
		if aerr := avail.Err(); aerr != nil {
			return result, aerr
		}

		meta, merr := relay.Metadata(ctx, shareID)
		if merr != nil {
			return result, merr
		}
		ckpt = &transferCheckpoint{
			ShareID:     shareID,
			Direction:   "download",
			TotalChunks: meta.TotalChunks,
			ChunkSize:   meta.ChunkSize,
			TotalSize:   meta.TotalSize,
		}
		if cerr := s.saveCheckpoint(ckpt); cerr != nil {
			return result, cerr
		}
	} else if ckpt.Direction != "download" {
		return result, NewConfigError("phrase", "a share cannot be imported by its owner")
	}

	if err := s.downloadShareChunks(ctx, relay, ckpt, result); err != nil {
		return result, err
	}
	result.State = RecipientDownloadComplete

	result.State = RecipientLocalSetup
	if err := s.importShareSpool(ctx, shareKey, phrase, ckpt, localKey, result); err != nil {
		result.State = RecipientFailed
		return result, err
	}

	if err := withRetry(ctx, func() error { return relay.MarkConsumed(ctx, shareID) }); err != nil {
		// The files are imported; consumption is what makes the phrase
		// one-time. Surface the failure so the host can retry.
		result.State = RecipientFailed
		return result, err
	}

	s.removeTransferState(shareID)
	result.State = RecipientReady
	s.log.Info().Str("share", shareID).Int("files", len(result.Imported)).Msg("share imported")
	return result, nil
}

// downloadShareChunks fetches the remaining chunks into the spool file,
// checkpointing after each
func (s *Store) downloadShareChunks(ctx context.Context, relay Relay, ckpt *transferCheckpoint, result *ImportResult) error {
	result.State = RecipientDownloading

	spool, err := s.fs.OpenFile(s.spoolPath(ckpt.ShareID), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return NewTransientError("spool", err)
	}
	defer spool.Close()

	for i := ckpt.ChunksDone; i < ckpt.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := i
		var chunk []byte
		err := withRetry(ctx, func() error {
			var derr error
			chunk, derr = relay.DownloadChunk(ctx, ckpt.ShareID, idx)
			return derr
		})
		if err != nil {
			return err
		}

		if _, err := spool.WriteAt(chunk, int64(i)*int64(ckpt.ChunkSize)); err != nil {
			return NewTransientError("spool", err)
		}
		if err := spool.Sync(); err != nil {
			return NewTransientError("sync", err)
		}

		ckpt.ChunksDone = i + 1
		if err := s.saveCheckpoint(ckpt); err != nil {
			return err
		}
		s.emit(ProgressEvent{Kind: ProgressDownload, ID: ckpt.ShareID, Done: min(int64(i+1)*int64(ckpt.ChunkSize), ckpt.TotalSize), Total: ckpt.TotalSize})
	}
	return nil
}

// importShareSpool decrypts the downloaded export and stores each file
// into the local vault, checkpointing after every imported file
func (s *Store) importShareSpool(ctx context.Context, shareKey []byte, phrase string, ckpt *transferCheckpoint, localKey []byte, result *ImportResult) error {
	done := make(map[string]bool, len(ckpt.Imported))
	for _, id := range ckpt.Imported {
		done[id] = true
	}

	parse := func(key []byte) error {
		engine, err := NewCipherEngine(CipherAuto, key)
		if err != nil {
			return err
		}

		spool, err := s.fs.OpenFile(s.spoolPath(ckpt.ShareID), os.O_RDONLY, 0)
		if err != nil {
			return NewTransientError("spool", err)
		}

		pr, pw := io.Pipe()
		decryptDone := make(chan error, 1)
		go func() {
			_, derr := DecryptStream(pw, io.LimitReader(&fileReaderAt{f: spool}, ckpt.TotalSize), engine, nil)
			pw.CloseWithError(derr)
			decryptDone <- derr
		}()
		defer func() {
			pr.CloseWithError(io.ErrClosedPipe)
			<-decryptDone
			spool.Close()
		}()

		var hdr [9]byte
		if _, err := io.ReadFull(pr, hdr[:]); err != nil {
			return NewIntegrityError("export", ErrCorruptHeader)
		}
		if binary.LittleEndian.Uint32(hdr[0:4]) != exportMagic {
			return NewIntegrityError("export", ErrCorruptHeader)
		}
		if hdr[4] != exportVersion {
			return NewIntegrityError("export", ErrUnsupportedFormat)
		}
		fileCount := binary.LittleEndian.Uint32(hdr[5:9])

		for i := uint32(0); i < fileCount; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			var lenBuf [4]byte
			if _, err := io.ReadFull(pr, lenBuf[:]); err != nil {
				return NewIntegrityError("export", ErrCorruptHeader)
			}
			metaJSON := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
			if _, err := io.ReadFull(pr, metaJSON); err != nil {
				return NewIntegrityError("export", ErrCorruptHeader)
			}
			var meta exportFileMeta
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return NewIntegrityError("export", fmt.Errorf("malformed file record: %w", err))
			}

			if done[meta.ID] {
				if _, err := io.CopyN(io.Discard, pr, meta.Size); err != nil {
					return NewIntegrityError("export", ErrCorruptHeader)
				}
				continue
			}

			entry, err := s.StoreFileFrom(io.LimitReader(pr, meta.Size), meta.Size, meta.Filename, meta.MimeType, localKey, nil)
			if err != nil {
				return err
			}
			result.Imported = append(result.Imported, entry.ID)

			ckpt.Imported = append(ckpt.Imported, meta.ID)
			if err := s.saveCheckpoint(ckpt); err != nil {
				return err
			}
			s.emit(ProgressEvent{Kind: ProgressImport, ID: ckpt.ShareID, Done: int64(i + 1), Total: int64(fileCount)})
		}
		return nil
	}

	err := parse(shareKey)
	if err != nil && IsIntegrityError(err) && len(result.Imported) == 0 {
		// Old shares were derived with the fixed v1 salt. Fall back once
		// before reporting the payload undecryptable.
		legacyKey := DeriveShareKeyLegacy(phrase)
		defer wipe(legacyKey)
		if lerr := parse(legacyKey); lerr == nil {
			result.Legacy = true
			s.log.Info().Str("share", ckpt.ShareID).Msg("share decrypted with legacy key derivation")
			return nil
		}
	}
	return err
}

// fileReaderAt adapts an absfs.File's ReadAt to a sequential reader
type fileReaderAt struct {
	f   interface{ ReadAt([]byte, int64) (int, error) }
	off int64
}

func (r *fileReaderAt) Read(p []byte) (int, error) {
	n, err := r.f.ReadAt(p, r.off)
	r.off += int64(n)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}
