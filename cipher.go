package blobvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite represents the AEAD algorithm to use
type CipherSuite uint8

const (
	// CipherAuto selects the default cipher (AES-256-GCM)
	CipherAuto CipherSuite = iota
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode
	CipherAES256GCM
	// CipherChaCha20Poly1305 uses ChaCha20 stream cipher with Poly1305 MAC
	CipherChaCha20Poly1305
)

// String returns the string representation of the cipher suite
func (c CipherSuite) String() string {
	switch c {
	case CipherAuto:
		return "auto"
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return "unknown"
	}
}

const (
	// KeySize is the required key length for every vault key
	KeySize = 32

	// NonceSize is the AEAD nonce length (96 bits)
	NonceSize = 12

	// TagSize is the AEAD authentication tag length
	TagSize = 16
)

// CipherEngine provides AEAD encryption/decryption with explicit nonces
type CipherEngine interface {
	// Encrypt encrypts plaintext with the given nonce
	Encrypt(nonce, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the given nonce
	Decrypt(nonce, ciphertext []byte) ([]byte, error)

	// NonceSize returns the size of nonces in bytes
	NonceSize() int

	// Overhead returns the authentication tag size
	Overhead() int
}

// aesGCMEngine implements CipherEngine using AES-256-GCM
type aesGCMEngine struct {
	aead cipher.AEAD
}

// newAESGCMEngine creates a new AES-256-GCM cipher engine
func newAESGCMEngine(key []byte) (*aesGCMEngine, error) {
	if len(key) != KeySize {
		return nil, &ConfigError{Field: "key", Message: fmt.Sprintf("AES-256 requires a %d-byte key, got %d bytes", KeySize, len(key)), Err: ErrKeyLength}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMEngine{aead: aead}, nil
}

func (e *aesGCMEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *aesGCMEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewIntegrityError("aead", ErrAuthentication)
	}
	return plaintext, nil
}

func (e *aesGCMEngine) NonceSize() int { return e.aead.NonceSize() }
func (e *aesGCMEngine) Overhead() int  { return e.aead.Overhead() }

// chaChaEngine implements CipherEngine using ChaCha20-Poly1305
type chaChaEngine struct {
	aead cipher.AEAD
}

// newChaChaEngine creates a new ChaCha20-Poly1305 cipher engine
func newChaChaEngine(key []byte) (*chaChaEngine, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, &ConfigError{Field: "key", Message: fmt.Sprintf("ChaCha20-Poly1305 requires a %d-byte key, got %d bytes", chacha20poly1305.KeySize, len(key)), Err: ErrKeyLength}
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &chaChaEngine{aead: aead}, nil
}

func (e *chaChaEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *chaChaEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewIntegrityError("aead", ErrAuthentication)
	}
	return plaintext, nil
}

func (e *chaChaEngine) NonceSize() int { return e.aead.NonceSize() }
func (e *chaChaEngine) Overhead() int  { return e.aead.Overhead() }

// NewCipherEngine creates a new cipher engine for the given suite and key
func NewCipherEngine(suite CipherSuite, key []byte) (CipherEngine, error) {
	switch suite {
	case CipherAES256GCM, CipherAuto:
		return newAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return newChaChaEngine(key)
	default:
		return nil, NewConfigError("cipher", fmt.Sprintf("unsupported cipher suite %d", suite))
	}
}

// GenerateNonce generates a random 96-bit nonce
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// RandomBytes returns n bytes of cryptographic randomness
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	return b, nil
}
