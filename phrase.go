package blobvault

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// PhraseWordCount is how many words a generated share phrase contains
	PhraseWordCount = 6

	// MinPhraseWords is the minimum word count a custom phrase must have
	MinPhraseWords = 4
)

// GeneratePhrase generates a human-readable one-time share phrase from the
// embedded wordlist
func GeneratePhrase() (string, error) {
	var raw [PhraseWordCount]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", NewTransientError("phrase", err)
	}

	words := make([]string, PhraseWordCount)
	for i, b := range raw {
		words[i] = phraseWords[b]
	}
	return strings.Join(words, " "), nil
}

// ValidatePhrase checks that a custom phrase is usable as a share secret.
// Generated phrases always pass.
func ValidatePhrase(phrase string) error {
	norm := normalizePhrase(phrase)
	if norm == "" {
		return &ConfigError{Field: "phrase", Message: "phrase cannot be empty", Err: ErrInvalidPhrase}
	}
	words := strings.Fields(norm)
	if len(words) < MinPhraseWords {
		return &ConfigError{
			Field:   "phrase",
			Message: fmt.Sprintf("phrase has %d words, minimum is %d", len(words), MinPhraseWords),
			Err:     ErrInvalidPhrase,
		}
	}
	return nil
}

// phraseChecksum is a short non-secret digest of a normalized phrase used
// only for log correlation; never derivable back to the phrase key space
// cheaply enough to matter, and never sent to the relay
func phraseChecksum(phrase string) string {
	norm := normalizePhrase(phrase)
	var h uint64 = 14695981039346656037
	for i := 0; i < len(norm); i++ {
		h ^= uint64(norm[i])
		h *= 1099511628211
	}
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], h)
	return fmt.Sprintf("%x", out[:4])
}
