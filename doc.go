// Package blobvault implements a personal encrypted file vault backed by a
// single pre-allocated container file that is indistinguishable from
// random data.
//
// # Overview
//
// A vault is one large container file filled with cryptographically random
// bytes at creation. Files are encrypted with authenticated encryption and
// written into regions of the container; an observer with the raw bytes
// cannot tell which regions hold ciphertext, how many files exist, or
// whether the vault has ever been used. All metadata lives in a separate
// encrypted index addressed by a fingerprint of the unlock key.
//
// # Supported Cipher Suites
//
// - AES-256-GCM: Advanced Encryption Standard with 256-bit keys and
//   Galois/Counter Mode for authenticated encryption
// - ChaCha20-Poly1305: Modern stream cipher with Poly1305 message
//   authentication
//
// Both provide AEAD with 128-bit authentication tags; every file, chunk,
// index, and thumbnail is independently authenticated.
//
// # Basic Usage
//
//	store, err := blobvault.Open(&blobvault.Options{
//	    FS:            osfs,
//	    Dir:           "/home/me/.blobvault",
//	    ContainerSize: 1 << 30, // 1 GiB
//	})
//	if err != nil {
//	    panic(err)
//	}
//	defer store.Close()
//
//	key, _ := blobvault.DeriveVaultKey(pattern, 3, deviceSalt)
//	entry, _ := store.StoreFile(content, "notes.txt", "text/plain", key, nil)
//	plain, _ := store.RetrieveFile(entry.ID, key)
//
// # Key Indirection
//
// Files are encrypted under a random MasterKey, never directly under the
// unlock key. The MasterKey is stored in the index wrapped by the unlock
// key, so changing the unlock secret re-wraps one 60-byte blob instead of
// re-encrypting the container. The unwrapped MasterKey is held only in a
// locked, guarded buffer for the duration of each operation.
//
// # Security Considerations
//
// Protected against:
//   - Unauthorized access to vault contents at rest
//   - Tampering and corruption (authenticated encryption everywhere)
//   - Existence proofs: a wrong key yields a fresh empty vault view, the
//     same as a vault that was never used
//   - Chunk reordering in streamed files
//
// Not protected against:
//   - Memory dumps while content is decrypted in memory
//   - Compromised systems with keyloggers or malware
//   - Traffic analysis of relay transfers (sizes and timing)
//
// # Container Format
//
// The container is ContainerSize bytes of random data. The final 16 bytes
// hold the allocation cursor XOR-masked with fixed constants, so even the
// bookkeeping record is indistinguishable from the surrounding noise.
// Freed regions are overwritten with fresh random bytes.
//
// # Sharing
//
// A one-time share exports selected vault contents encrypted under a key
// derived from a generated phrase, uploads the ciphertext in chunks to an
// untrusted relay, and is claimable exactly once. The relay addresses the
// share by a fingerprint of the derived key and never sees the phrase,
// the key, or any plaintext. See InitiateShare and ImportShare.
package blobvault
