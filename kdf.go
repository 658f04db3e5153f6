package blobvault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation
//
// Every unlock secret (drawn pattern or phrase) becomes a 256-bit key via
// iterated password hashing. Pattern keys use a device-bound salt supplied
// by the host. Phrase derivations compute their salt from the phrase itself
// so a recipient device reproduces the key with no persisted state.

const (
	// MinPatternNodes is the minimum number of nodes an unlock pattern
	// must connect
	MinPatternNodes = 6

	// patternIterations is the PBKDF2 iteration count for pattern keys
	patternIterations = 600_000

	// recoveryIterations is the PBKDF2 iteration count for recovery-phrase
	// keys. Higher than patternIterations: phrase entropy may be lower and
	// there is no device binding.
	recoveryIterations = 1_000_000

	// shareIterations is the PBKDF2 iteration count for share keys
	shareIterations = 600_000

	// recoverySaltPrefix versions the recovery-phrase salt derivation
	recoverySaltPrefix = "recovery-v1:"

	// shareSaltPrefix versions the per-phrase share salt derivation
	shareSaltPrefix = "share-v2-"

	// legacyShareSalt is the fixed salt v1 shares were derived with.
	// Kept only so old share payloads remain decryptable.
	legacyShareSalt = "share-v1-fixed-salt"

	// FingerprintBytes is how many digest bytes a key fingerprint keeps
	FingerprintBytes = 8
)

// Argon2idParams contains parameters for optional Argon2id pattern
// derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB (e.g., 64*1024 for 64MB)
	Iterations  uint32 // Number of iterations (time parameter)
	Parallelism uint8  // Degree of parallelism
}

// DefaultArgon2idParams returns the recommended Argon2id parameters
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// serializePattern renders a pattern deterministically: grid size followed
// by the node sequence. The same drawn pattern always serializes to the
// same bytes.
func serializePattern(pattern []int, gridSize int) []byte {
	var sb strings.Builder
	sb.WriteString("g")
	sb.WriteString(strconv.Itoa(gridSize))
	sb.WriteString(":")
	for i, n := range pattern {
		if i > 0 {
			sb.WriteString("-")
		}
		sb.WriteString(strconv.Itoa(n))
	}
	return []byte(sb.String())
}

// DeriveVaultKey derives a 256-bit vault key from a drawn pattern and a
// device-bound salt. Fails with ErrInvalidPattern below MinPatternNodes.
func DeriveVaultKey(pattern []int, gridSize int, deviceSalt []byte) ([]byte, error) {
	if len(pattern) < MinPatternNodes {
		return nil, &ConfigError{
			Field:   "pattern",
			Message: fmt.Sprintf("pattern has %d nodes, minimum is %d", len(pattern), MinPatternNodes),
			Err:     ErrInvalidPattern,
		}
	}
	if len(deviceSalt) == 0 {
		return nil, NewConfigError("deviceSalt", "device salt cannot be empty")
	}

	return pbkdf2.Key(serializePattern(pattern, gridSize), deviceSalt, patternIterations, KeySize, sha256.New), nil
}

// DeriveVaultKeyArgon2 derives a pattern key with Argon2id instead of
// PBKDF2. Pattern keys are device-bound anyway, so the memory-hard variant
// is available to hosts that want it.
func DeriveVaultKeyArgon2(pattern []int, gridSize int, deviceSalt []byte, params Argon2idParams) ([]byte, error) {
	if len(pattern) < MinPatternNodes {
		return nil, &ConfigError{
			Field:   "pattern",
			Message: fmt.Sprintf("pattern has %d nodes, minimum is %d", len(pattern), MinPatternNodes),
			Err:     ErrInvalidPattern,
		}
	}
	if len(deviceSalt) == 0 {
		return nil, NewConfigError("deviceSalt", "device salt cannot be empty")
	}

	return argon2.IDKey(serializePattern(pattern, gridSize), deviceSalt, params.Iterations, params.Memory, params.Parallelism, KeySize), nil
}

// normalizePhrase lowercases a phrase and collapses all whitespace runs to
// single spaces
func normalizePhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// DeriveRecoveryKey derives a 256-bit key from a recovery phrase. The salt
// is computed from the phrase itself, so the derivation is reproducible
// across devices and reinstalls with no persisted state.
func DeriveRecoveryKey(phrase string) []byte {
	norm := normalizePhrase(phrase)
	salt := sha256.Sum256([]byte(recoverySaltPrefix + norm))
	return pbkdf2.Key([]byte(norm), salt[:], recoveryIterations, KeySize, sha256.New)
}

// DeriveShareKey derives the transfer key for a share phrase. The salt is
// unique per phrase, not one fixed salt reused for all shares.
func DeriveShareKey(phrase string) []byte {
	norm := normalizePhrase(phrase)
	salt := sha256.Sum256([]byte(shareSaltPrefix + norm))
	return pbkdf2.Key([]byte(norm), salt[:], shareIterations, KeySize, sha256.New)
}

// DeriveShareKeyLegacy derives a share key the way v1 shares did, with one
// fixed salt for every phrase. Used only as a decryption fallback.
func DeriveShareKeyLegacy(phrase string) []byte {
	norm := normalizePhrase(phrase)
	salt := sha256.Sum256([]byte(legacyShareSalt))
	return pbkdf2.Key([]byte(norm), salt[:], shareIterations, KeySize, sha256.New)
}

// Fingerprint returns the non-secret identifier for a key: the hex digest
// of a truncated SHA-256. It selects the on-disk index for a key and is
// not invertible to the key.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:FingerprintBytes])
}
