package blobvault

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestIndex_EncodeDecodeRoundTrip(t *testing.T) {
	key := testKey(t, 0x42)

	idx, err := newVaultIndex(key)
	if err != nil {
		t.Fatalf("newVaultIndex failed: %v", err)
	}
	idx.Files = append(idx.Files, FileEntry{
		ID:        uuid.New(),
		Offset:    0,
		Size:      1234,
		Filename:  "a.txt",
		MimeType:  "text/plain",
		CreatedAt: 1700000000.5,
	})
	idx.NextOffset = 1234

	sealed, err := encodeIndex(idx, key)
	if err != nil {
		t.Fatalf("encodeIndex failed: %v", err)
	}

	got, err := decodeIndex(sealed, key)
	if err != nil {
		t.Fatalf("decodeIndex failed: %v", err)
	}
	if got.Version != IndexVersionCurrent {
		t.Errorf("version: got %d, want %d", got.Version, IndexVersionCurrent)
	}
	if len(got.Files) != 1 || got.Files[0].ID != idx.Files[0].ID {
		t.Error("file entries did not survive the roundtrip")
	}
	if got.NextOffset != 1234 {
		t.Errorf("next offset: got %d, want 1234", got.NextOffset)
	}
	if !bytes.Equal(got.EncryptedMasterKey, idx.EncryptedMasterKey) {
		t.Error("wrapped master key changed across the roundtrip")
	}
}

func TestIndex_WrongKeyFailsDecode(t *testing.T) {
	idx, err := newVaultIndex(testKey(t, 0x01))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := encodeIndex(idx, testKey(t, 0x01))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := decodeIndex(sealed, testKey(t, 0x02)); err == nil {
		t.Error("expected decode failure with wrong key")
	}
}

func TestIndex_MasterKeyUnwraps(t *testing.T) {
	key := testKey(t, 0x42)
	idx, err := newVaultIndex(key)
	if err != nil {
		t.Fatal(err)
	}

	master, err := Decrypt(idx.EncryptedMasterKey, key)
	if err != nil {
		t.Fatalf("unwrapping master key failed: %v", err)
	}
	if len(master) != KeySize {
		t.Errorf("master key length: got %d, want %d", len(master), KeySize)
	}
	if bytes.Equal(master, key) {
		t.Error("fresh master key should not equal the vault key")
	}
}

func TestIndex_FindEntrySkipsDeleted(t *testing.T) {
	idx := &VaultIndex{}
	id := uuid.New()
	idx.Files = append(idx.Files, FileEntry{ID: id, Deleted: true})

	if idx.findEntry(id) != nil {
		t.Error("findEntry returned a tombstoned entry")
	}
	if got := idx.liveFiles(); len(got) != 0 {
		t.Errorf("liveFiles: got %d entries, want 0", len(got))
	}
}

func TestIndex_MigrateLegacy(t *testing.T) {
	key := testKey(t, 0x42)
	legacy := &VaultIndex{Version: IndexVersionLegacy, Files: []FileEntry{}}

	migrated, err := migrateIndex(legacy, key)
	if err != nil {
		t.Fatalf("migrateIndex failed: %v", err)
	}
	if !migrated {
		t.Fatal("expected migration to occur")
	}
	if legacy.Version != IndexVersionCurrent {
		t.Errorf("version after migration: got %d, want %d", legacy.Version, IndexVersionCurrent)
	}

	// The synthesized master key must be the vault key itself, so ciphertext
	// sealed under the old direct-key scheme stays readable.
	master, err := Decrypt(legacy.EncryptedMasterKey, key)
	if err != nil {
		t.Fatalf("unwrapping synthesized master key failed: %v", err)
	}
	if !bytes.Equal(master, key) {
		t.Error("synthesized master key should equal the vault key")
	}

	// Already-current indexes are untouched
	migrated, err = migrateIndex(legacy, key)
	if err != nil {
		t.Fatal(err)
	}
	if migrated {
		t.Error("migration should be idempotent")
	}
}
