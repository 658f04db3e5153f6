package blobvault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/absfs/memfs"
)

func openTestStore(t *testing.T, mutate func(*Options)) *Store {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	opts := &Options{
		FS:            fs,
		Dir:           "/vault",
		ContainerSize: 4 << 20,
	}
	if mutate != nil {
		mutate(opts)
	}
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Container().WaitReady(); err != nil {
		t.Fatalf("container init failed: %v", err)
	}
	return s
}

func TestOpen_ValidatesOptions(t *testing.T) {
	if _, err := Open(&Options{}); !IsConfigError(err) {
		t.Errorf("expected ConfigError for nil FS, got %v", err)
	}

	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(&Options{FS: fs}); !IsConfigError(err) {
		t.Errorf("expected ConfigError for empty dir, got %v", err)
	}
}

func TestStore_StoreRetrieveRoundTrip(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	content := make([]byte, 10000)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	entry, err := s.StoreFile(content, "doc.pdf", "application/pdf", key, nil)
	if err != nil {
		t.Fatalf("StoreFile failed: %v", err)
	}
	if entry.Filename != "doc.pdf" || entry.MimeType != "application/pdf" {
		t.Errorf("entry metadata: %q %q", entry.Filename, entry.MimeType)
	}
	if entry.Size != FileCiphertextSize(int64(len(content)), DefaultStreamThreshold, DefaultChunkSize) {
		t.Errorf("entry size: got %d", entry.Size)
	}

	got, err := s.RetrieveFile(entry.ID, key)
	if err != nil {
		t.Fatalf("RetrieveFile failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("content mismatch after roundtrip")
	}
}

func TestStore_StreamedStoreRetrieve(t *testing.T) {
	// Force the streaming path with a tiny threshold
	s := openTestStore(t, func(o *Options) {
		o.StreamThreshold = 1024
		o.ChunkSize = 512
	})
	key := testKey(t, 0x42)

	content := make([]byte, 100*1024)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	entry, err := s.StoreFile(content, "video.mp4", "video/mp4", key, nil)
	if err != nil {
		t.Fatalf("StoreFile failed: %v", err)
	}
	if entry.Size != 4+SingleShotSize(FileHeaderSize)+StreamingSize(int64(len(content)), 512) {
		t.Errorf("streamed entry size: got %d", entry.Size)
	}

	got, err := s.RetrieveFile(entry.ID, key)
	if err != nil {
		t.Fatalf("RetrieveFile failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("streamed content mismatch")
	}
}

func TestStore_ThresholdBoundaryRoundTrip(t *testing.T) {
	threshold := int64(1024)
	s := openTestStore(t, func(o *Options) {
		o.StreamThreshold = threshold
		o.ChunkSize = 256
	})
	key := testKey(t, 0x42)

	for _, n := range []int64{threshold - 1, threshold, threshold + 1} {
		content := make([]byte, n)
		if _, err := rand.Read(content); err != nil {
			t.Fatal(err)
		}

		entry, err := s.StoreFile(content, "b.bin", "", key, nil)
		if err != nil {
			t.Fatalf("StoreFile(%d bytes) failed: %v", n, err)
		}
		if entry.Size != FileCiphertextSize(n, threshold, 256) {
			t.Errorf("entry size for %d bytes: got %d, want %d", n,
				entry.Size, FileCiphertextSize(n, threshold, 256))
		}

		got, err := s.RetrieveFile(entry.ID, key)
		if err != nil {
			t.Fatalf("RetrieveFile(%d bytes) failed: %v", n, err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("content mismatch after roundtrip at %d bytes", n)
		}
	}
}

func TestStore_EmptyFile(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	entry, err := s.StoreFile(nil, "empty", "", key, nil)
	if err != nil {
		t.Fatalf("StoreFile of empty content failed: %v", err)
	}
	got, err := s.RetrieveFile(entry.ID, key)
	if err != nil {
		t.Fatalf("RetrieveFile failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty content, got %d bytes", len(got))
	}
}

func TestStore_OffsetsContiguous(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	sizes := []int{100, 200, 300}
	var entries []*FileEntry
	for _, n := range sizes {
		e, err := s.StoreFile(make([]byte, n), "f", "", key, nil)
		if err != nil {
			t.Fatalf("StoreFile(%d) failed: %v", n, err)
		}
		entries = append(entries, e)
	}

	for i := 1; i < len(entries); i++ {
		want := entries[i-1].Offset + entries[i-1].Size
		if entries[i].Offset != want {
			t.Errorf("entry %d offset: got %d, want %d", i, entries[i].Offset, want)
		}
	}

	idx, err := s.LoadIndex(key)
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if idx.NextOffset != last.Offset+last.Size {
		t.Errorf("NextOffset: got %d, want %d", idx.NextOffset, last.Offset+last.Size)
	}
}

func TestStore_ListFiles(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	if files, err := s.ListFiles(key); err != nil || len(files) != 0 {
		t.Fatalf("fresh vault list: files=%d err=%v", len(files), err)
	}

	e1, err := s.StoreFile([]byte("one"), "1.txt", "text/plain", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.StoreFile([]byte("two"), "2.txt", "text/plain", key, nil)
	if err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles(key)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].ID != e1.ID || files[1].ID != e2.ID {
		t.Errorf("list mismatch: %+v", files)
	}
}

func TestStore_DeleteFile(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	entry, err := s.StoreFile([]byte("delete me"), "x", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile(entry.ID, key); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	if _, err := s.RetrieveFile(entry.ID, key); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound after delete, got %v", err)
	}
	if err := s.DeleteFile(entry.ID, key); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("double delete: expected ErrFileNotFound, got %v", err)
	}

	files, err := s.ListFiles(key)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("deleted file still listed: %+v", files)
	}

	// The region must no longer hold the original ciphertext
	region, err := s.Container().ReadAt(entry.Offset, entry.Size)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := s.LoadIndex(key)
	if err != nil {
		t.Fatal(err)
	}
	master, err := Decrypt(idx.EncryptedMasterKey, key)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecryptFile(region, master, DefaultStreamThreshold); err == nil {
		t.Error("region still decrypts after delete")
	}
}

func TestStore_DeletedSpaceNotReused(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	e1, err := s.StoreFile(make([]byte, 500), "a", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFile(e1.ID, key); err != nil {
		t.Fatal(err)
	}

	e2, err := s.StoreFile(make([]byte, 500), "b", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e2.Offset != e1.Offset+e1.Size {
		t.Errorf("allocation reused freed space: got %d, want %d", e2.Offset, e1.Offset+e1.Size)
	}
}

func TestStore_WrongKeyLooksEmpty(t *testing.T) {
	s := openTestStore(t, nil)

	if _, err := s.StoreFile([]byte("hidden"), "h", "", testKey(t, 0x01), nil); err != nil {
		t.Fatal(err)
	}

	// A different key sees a fresh empty vault, not an error
	files, err := s.ListFiles(testKey(t, 0x02))
	if err != nil {
		t.Fatalf("wrong key should not error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("wrong key sees %d files", len(files))
	}
}

func TestStore_CorruptIndexLooksEmpty(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	if _, err := s.StoreFile([]byte("data"), "f", "", key, nil); err != nil {
		t.Fatal(err)
	}

	// Corrupt the index file on disk
	fp := Fingerprint(key)
	raw, err := s.readFile(s.indexPath(fp))
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)/2] ^= 0xFF
	if err := s.writeFileAtomic(s.indexPath(fp), raw); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles(key)
	if err != nil {
		t.Fatalf("corrupt index should synthesize an empty vault: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("corrupt index still lists %d files", len(files))
	}
}

func TestStore_NewerIndexVersionRefused(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	if _, err := s.StoreFile([]byte("data"), "f", "", key, nil); err != nil {
		t.Fatal(err)
	}

	// Reseal the manifest as if written by a newer release. It still
	// authenticates under the right key, so it must not be mistaken for a
	// wrong key.
	fp := Fingerprint(key)
	idx, err := s.LoadIndex(key)
	if err != nil {
		t.Fatal(err)
	}
	idx.Version = IndexVersionCurrent + 1
	sealed, err := encodeIndex(idx, key)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.writeFileAtomic(s.indexPath(fp), sealed); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ListFiles(key); !IsConfigError(err) {
		t.Fatalf("newer manifest version should refuse to open, got %v", err)
	}
	if _, err := s.StoreFile([]byte("more"), "g", "", key, nil); !IsConfigError(err) {
		t.Fatalf("store against newer manifest should refuse, got %v", err)
	}

	// The newer manifest must survive untouched.
	raw, err := s.readFile(s.indexPath(fp))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, sealed) {
		t.Error("newer manifest was rewritten on disk")
	}
}

func TestStore_Thumbnail(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)
	thumb := []byte("tiny jpeg bytes")

	entry, err := s.StoreFile([]byte("full image"), "p.jpg", "image/jpeg", key, thumb)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveThumbnail(entry.ID, key)
	if err != nil {
		t.Fatalf("RetrieveThumbnail failed: %v", err)
	}
	if !bytes.Equal(got, thumb) {
		t.Error("thumbnail mismatch")
	}

	// Thumbnails in the index are sealed, never plaintext
	idx, err := s.LoadIndex(key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(idx.Files[0].Thumbnail, thumb) {
		t.Error("thumbnail stored unencrypted in the index")
	}

	noThumb, err := s.StoreFile([]byte("x"), "y", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := s.RetrieveThumbnail(noThumb.ID, key); err != nil || got != nil {
		t.Errorf("entry without thumbnail: got %v, %v", got, err)
	}
}

func TestStore_ChangeVaultKey(t *testing.T) {
	s := openTestStore(t, nil)
	oldKey := testKey(t, 0x01)
	newKey := testKey(t, 0x02)

	entry, err := s.StoreFile([]byte("survives rekey"), "f", "", oldKey, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ChangeVaultKey(oldKey, newKey); err != nil {
		t.Fatalf("ChangeVaultKey failed: %v", err)
	}

	got, err := s.RetrieveFile(entry.ID, newKey)
	if err != nil {
		t.Fatalf("retrieve under new key failed: %v", err)
	}
	if !bytes.Equal(got, []byte("survives rekey")) {
		t.Error("content mismatch after rekey")
	}

	// The old fingerprint's index is gone; the old key now sees an empty
	// vault
	files, err := s.ListFiles(oldKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Error("old key still sees the vault after rekey")
	}
}

func TestStore_ChangeVaultKey_SameKey(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	if _, err := s.StoreFile([]byte("x"), "f", "", key, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ChangeVaultKey(key, key); err != nil {
		t.Errorf("rekey to the same key should be a no-op, got %v", err)
	}
	files, err := s.ListFiles(key)
	if err != nil || len(files) != 1 {
		t.Errorf("vault changed by no-op rekey: files=%d err=%v", len(files), err)
	}
}

func TestStore_ChangeVaultKey_TargetExists(t *testing.T) {
	s := openTestStore(t, nil)
	k1 := testKey(t, 0x01)
	k2 := testKey(t, 0x02)

	if _, err := s.StoreFile([]byte("one"), "f", "", k1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreFile([]byte("two"), "g", "", k2, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.ChangeVaultKey(k1, k2); !errors.Is(err, ErrVaultAlreadyExists) {
		t.Errorf("expected ErrVaultAlreadyExists, got %v", err)
	}
}

func TestStore_VerifyAll(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	e1, err := s.StoreFile([]byte("alpha"), "a", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.StoreFile([]byte("beta"), "b", "", key, nil); err != nil {
		t.Fatal(err)
	}

	if failed, err := s.VerifyAll(key); err != nil || failed != nil {
		t.Fatalf("VerifyAll on a healthy vault: failed=%v err=%v", failed, err)
	}

	// Corrupt the first file's region directly
	if err := s.Container().WriteAt(make([]byte, 8), e1.Offset+10); err != nil {
		t.Fatal(err)
	}
	failed, err := s.VerifyAll(key)
	if err == nil {
		t.Fatal("expected VerifyAll to report the corrupted file")
	}
	if len(failed) != 1 || failed[0] != e1.ID {
		t.Errorf("failed IDs: got %v, want [%s]", failed, e1.ID)
	}
}

func TestStore_CapacityExceeded(t *testing.T) {
	s := openTestStore(t, func(o *Options) {
		o.ContainerSize = 8 * 1024
	})
	key := testKey(t, 0x42)

	_, err := s.StoreFile(make([]byte, 16*1024), "big", "", key, nil)
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("expected ErrInsufficientSpace, got %v", err)
	}

	// The failed store must not corrupt the vault
	if _, err := s.StoreFile([]byte("small"), "s", "", key, nil); err != nil {
		t.Errorf("store after capacity failure: %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	key := testKey(t, 0x42)
	opts := func() *Options {
		return &Options{FS: fs, Dir: "/vault", ContainerSize: 1 << 20}
	}

	s1, err := Open(opts())
	if err != nil {
		t.Fatal(err)
	}
	entry, err := s1.StoreFile([]byte("persistent"), "p", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(opts())
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.RetrieveFile(entry.ID, key)
	if err != nil {
		t.Fatalf("retrieve after reopen failed: %v", err)
	}
	if !bytes.Equal(got, []byte("persistent")) {
		t.Error("content mismatch after reopen")
	}
}

// drainEvents empties the store's progress channel without blocking
func drainEvents(s *Store) []ProgressEvent {
	var out []ProgressEvent
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestStore_RetrieveProgressTotals(t *testing.T) {
	s := openTestStore(t, func(o *Options) {
		o.StreamThreshold = 1024
		o.ChunkSize = 512
	})
	key := testKey(t, 0x42)

	content := make([]byte, 5000)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}
	entry, err := s.StoreFile(content, "v.bin", "", key, nil)
	if err != nil {
		t.Fatal(err)
	}
	drainEvents(s)

	if _, err := s.RetrieveFile(entry.ID, key); err != nil {
		t.Fatal(err)
	}

	var got []ProgressEvent
	for _, ev := range drainEvents(s) {
		if ev.Kind == ProgressRetrieve {
			got = append(got, ev)
		}
	}
	if len(got) == 0 {
		t.Fatal("no retrieve progress events")
	}
	for _, ev := range got {
		if ev.Total != int64(len(content)) {
			t.Errorf("event total: got %d, want %d", ev.Total, len(content))
		}
		if ev.Done > ev.Total {
			t.Errorf("event done %d exceeds total %d", ev.Done, ev.Total)
		}
	}
	if last := got[len(got)-1]; last.Done != last.Total {
		t.Errorf("final event done %d, want %d", last.Done, last.Total)
	}
}

func TestStore_RetrieveUnknownID(t *testing.T) {
	s := openTestStore(t, nil)
	key := testKey(t, 0x42)

	if _, err := s.RetrieveFile(NewFileHeader(0, "", "").FileID, key); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}
