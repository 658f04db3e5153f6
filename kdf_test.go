package blobvault

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveVaultKey_Deterministic(t *testing.T) {
	pattern := []int{0, 4, 8, 5, 2, 1}
	salt := bytes.Repeat([]byte{0xAB}, 32)

	k1, err := DeriveVaultKey(pattern, 3, salt)
	if err != nil {
		t.Fatalf("DeriveVaultKey failed: %v", err)
	}
	k2, err := DeriveVaultKey(pattern, 3, salt)
	if err != nil {
		t.Fatalf("DeriveVaultKey failed: %v", err)
	}

	if len(k1) != KeySize {
		t.Errorf("key length: got %d, want %d", len(k1), KeySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same pattern and salt produced different keys")
	}
}

func TestDeriveVaultKey_SaltSeparation(t *testing.T) {
	pattern := []int{0, 4, 8, 5, 2, 1}

	k1, err := DeriveVaultKey(pattern, 3, bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatal(err)
	}
	k2, err := DeriveVaultKey(pattern, 3, bytes.Repeat([]byte{0x02}, 32))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k1, k2) {
		t.Error("different device salts produced the same key")
	}
}

func TestDeriveVaultKey_GridSeparation(t *testing.T) {
	pattern := []int{0, 4, 8, 5, 2, 1}
	salt := bytes.Repeat([]byte{0xAB}, 32)

	k3, err := DeriveVaultKey(pattern, 3, salt)
	if err != nil {
		t.Fatal(err)
	}
	k4, err := DeriveVaultKey(pattern, 4, salt)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k3, k4) {
		t.Error("same nodes on different grids produced the same key")
	}
}

func TestDeriveVaultKey_TooShort(t *testing.T) {
	_, err := DeriveVaultKey([]int{0, 1, 2, 3, 4}, 3, bytes.Repeat([]byte{0xAB}, 32))
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern for 5-node pattern, got %v", err)
	}
}

func TestDeriveVaultKeyArgon2(t *testing.T) {
	pattern := []int{0, 4, 8, 5, 2, 1}
	salt := bytes.Repeat([]byte{0xAB}, 32)
	params := Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1}

	k1, err := DeriveVaultKeyArgon2(pattern, 3, salt, params)
	if err != nil {
		t.Fatalf("DeriveVaultKeyArgon2 failed: %v", err)
	}
	k2, err := DeriveVaultKeyArgon2(pattern, 3, salt, params)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("argon2 derivation is not deterministic")
	}

	pbkdf2Key, err := DeriveVaultKey(pattern, 3, salt)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k1, pbkdf2Key) {
		t.Error("argon2 and pbkdf2 should not produce the same key")
	}
}

func TestDeriveRecoveryKey_Normalization(t *testing.T) {
	k1 := DeriveRecoveryKey("correct horse battery staple")
	k2 := DeriveRecoveryKey("  Correct   HORSE battery  staple ")
	if !bytes.Equal(k1, k2) {
		t.Error("phrase normalization failed: case and whitespace should not matter")
	}

	k3 := DeriveRecoveryKey("correct horse battery stapler")
	if bytes.Equal(k1, k3) {
		t.Error("different phrases produced the same key")
	}
}

func TestDeriveShareKey_DomainSeparation(t *testing.T) {
	phrase := "correct horse battery staple"

	share := DeriveShareKey(phrase)
	recovery := DeriveRecoveryKey(phrase)
	legacy := DeriveShareKeyLegacy(phrase)

	if bytes.Equal(share, recovery) {
		t.Error("share and recovery keys should differ for the same phrase")
	}
	if bytes.Equal(share, legacy) {
		t.Error("v2 and legacy share keys should differ for the same phrase")
	}
}

func TestFingerprint(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)

	fp := Fingerprint(key)
	if len(fp) != FingerprintBytes*2 {
		t.Errorf("fingerprint length: got %d, want %d", len(fp), FingerprintBytes*2)
	}
	if fp != Fingerprint(key) {
		t.Error("fingerprint is not deterministic")
	}
	if fp == Fingerprint(bytes.Repeat([]byte{0x43}, KeySize)) {
		t.Error("different keys produced the same fingerprint")
	}
}
