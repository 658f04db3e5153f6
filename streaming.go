package blobvault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Streaming format for large files
//
// Stream Layout:
// ┌─────────────────────────────────────┐
// │ Stream Header (33 bytes)            │
// │ - Magic (uint32)                    │
// │ - Version (uint8)                   │
// │ - Chunk size (uint32)               │
// │ - Total chunks (uint32)             │
// │ - Original size (uint64)            │
// │ - Base nonce (12 bytes)             │
// ├─────────────────────────────────────┤
// │ Chunk 0                             │
// │ ├─ Record length (uint32)           │
// │ ├─ Chunk nonce (12 bytes)           │
// │ └─ Ciphertext + Auth Tag            │
// ├─────────────────────────────────────┤
// │ Chunk 1                             │
// │ └─ ...                              │
// └─────────────────────────────────────┘
//
// Each chunk's nonce is the base nonce with the big-endian chunk index
// XORed into the low 8 bytes, which binds chunk ordering into the nonce
// itself. Decryption recomputes the expected nonce per index and rejects
// any chunk whose embedded nonce disagrees before attempting to open it.

const (
	// StreamMagic identifies a streaming ciphertext ("BVST")
	StreamMagic = uint32(0x42565354)

	// StreamVersion is the current streaming format version
	StreamVersion = uint8(1)

	// StreamHeaderSize is the fixed size of the stream header:
	// 4 (magic) + 1 (version) + 4 (chunk size) + 4 (total chunks) +
	// 8 (original size) + 12 (base nonce)
	StreamHeaderSize = 33

	// ChunkOverhead is the per-chunk ciphertext expansion:
	// 4 (record length) + 12 (nonce) + 16 (tag)
	ChunkOverhead = 4 + NonceSize + TagSize

	// DefaultChunkSize is the default streaming chunk size (1 MiB)
	DefaultChunkSize = 1 << 20

	// MinChunkSize is the minimum allowed chunk size (64 bytes, for testing)
	MinChunkSize = 64

	// MaxChunkSize is the maximum allowed chunk size (16 MiB)
	MaxChunkSize = 16 << 20

	// DefaultStreamThreshold is the plaintext size above which file content
	// switches from single-shot to streaming encryption (4 MiB)
	DefaultStreamThreshold = 4 << 20
)

// StreamHeader contains metadata for a chunked streaming ciphertext
type StreamHeader struct {
	ChunkSize    uint32
	TotalChunks  uint32
	OriginalSize uint64
	BaseNonce    [NonceSize]byte
}

// WriteTo writes the stream header to a writer
func (h *StreamHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	buf.Grow(StreamHeaderSize)

	binary.Write(buf, binary.LittleEndian, StreamMagic)
	buf.WriteByte(StreamVersion)
	binary.Write(buf, binary.LittleEndian, h.ChunkSize)
	binary.Write(buf, binary.LittleEndian, h.TotalChunks)
	binary.Write(buf, binary.LittleEndian, h.OriginalSize)
	buf.Write(h.BaseNonce[:])

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads and validates the stream header from a reader
func (h *StreamHeader) ReadFrom(r io.Reader) (int64, error) {
	raw := make([]byte, StreamHeaderSize)
	n, err := io.ReadFull(r, raw)
	if err != nil {
		return int64(n), NewIntegrityError("stream header", ErrCorruptHeader)
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != StreamMagic {
		return int64(n), NewIntegrityError("stream header", ErrCorruptHeader)
	}
	if raw[4] != StreamVersion {
		return int64(n), NewIntegrityError("stream header", ErrUnsupportedFormat)
	}

	h.ChunkSize = binary.LittleEndian.Uint32(raw[5:9])
	h.TotalChunks = binary.LittleEndian.Uint32(raw[9:13])
	h.OriginalSize = binary.LittleEndian.Uint64(raw[13:21])
	copy(h.BaseNonce[:], raw[21:33])

	if err := ValidateChunkSize(h.ChunkSize); err != nil {
		return int64(n), NewIntegrityError("stream header", err)
	}
	return int64(n), nil
}

// chunkNonce derives the nonce for a chunk index from the base nonce.
// The big-endian index is XORed into the low 8 bytes.
func chunkNonce(base [NonceSize]byte, idx uint32) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, base[:])

	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], uint64(idx))
	for i := 0; i < 8; i++ {
		nonce[NonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

// ValidateChunkSize validates that a chunk size is within acceptable bounds
func ValidateChunkSize(size uint32) error {
	if size < MinChunkSize {
		return fmt.Errorf("chunk size %d below minimum %d", size, MinChunkSize)
	}
	if size > MaxChunkSize {
		return fmt.Errorf("chunk size %d above maximum %d", size, MaxChunkSize)
	}
	return nil
}

// CalculateChunkCount calculates how many chunks are needed for a given
// plaintext size
func CalculateChunkCount(dataSize int64, chunkSize uint32) uint32 {
	if dataSize == 0 {
		return 0
	}
	chunks := (dataSize + int64(chunkSize) - 1) / int64(chunkSize)
	return uint32(chunks)
}

// StreamingSize returns the exact ciphertext size for a plaintext of n
// bytes encrypted with the streaming format
func StreamingSize(n int64, chunkSize uint32) int64 {
	return StreamHeaderSize + int64(CalculateChunkCount(n, chunkSize))*ChunkOverhead + n
}

// EncryptStream encrypts size bytes from src into dst using the chunked
// streaming format. Peak memory is bounded to roughly one chunk regardless
// of stream size. The progress callback, if non-nil, receives cumulative
// plaintext bytes processed.
func EncryptStream(dst io.Writer, src io.Reader, size int64, engine CipherEngine, chunkSize uint32, progress func(done int64)) error {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if err := ValidateChunkSize(chunkSize); err != nil {
		return NewConfigError("chunkSize", err.Error())
	}
	if size < 0 {
		return NewConfigError("size", "negative stream size")
	}

	baseNonce, err := GenerateNonce()
	if err != nil {
		return &TransientError{Operation: "encrypt", Message: "randomness failure", Err: err}
	}

	hdr := &StreamHeader{
		ChunkSize:    chunkSize,
		TotalChunks:  CalculateChunkCount(size, chunkSize),
		OriginalSize: uint64(size),
	}
	copy(hdr.BaseNonce[:], baseNonce)

	if _, err := hdr.WriteTo(dst); err != nil {
		return NewTransientError("write", err)
	}

	buf := make([]byte, chunkSize)
	var done int64
	for idx := uint32(0); idx < hdr.TotalChunks; idx++ {
		want := int64(chunkSize)
		if remaining := size - done; remaining < want {
			want = remaining
		}

		if _, err := io.ReadFull(src, buf[:want]); err != nil {
			return NewTransientError("read", err)
		}

		nonce := chunkNonce(hdr.BaseNonce, idx)
		ct, err := engine.Encrypt(nonce, buf[:want])
		if err != nil {
			return fmt.Errorf("failed to encrypt chunk %d: %w", idx, err)
		}

		record := make([]byte, 4)
		binary.LittleEndian.PutUint32(record, uint32(len(nonce)+len(ct)))
		if _, err := dst.Write(record); err != nil {
			return NewTransientError("write", err)
		}
		if _, err := dst.Write(nonce); err != nil {
			return NewTransientError("write", err)
		}
		if _, err := dst.Write(ct); err != nil {
			return NewTransientError("write", err)
		}

		done += want
		if progress != nil {
			progress(done)
		}
	}

	return nil
}

// DecryptStream decrypts a chunked streaming ciphertext from src into dst.
// Chunks are verified against their index-bound nonces; a reordered or
// substituted chunk fails with ErrChunkOrdering before any of its bytes are
// emitted. Returns the plaintext size written.
func DecryptStream(dst io.Writer, src io.Reader, engine CipherEngine, progress func(done int64)) (int64, error) {
	hdr := &StreamHeader{}
	if _, err := hdr.ReadFrom(src); err != nil {
		return 0, err
	}

	var done int64
	lenBuf := make([]byte, 4)
	for idx := uint32(0); idx < hdr.TotalChunks; idx++ {
		if _, err := io.ReadFull(src, lenBuf); err != nil {
			return done, NewChunkIntegrityError("stream", idx, ErrCorruptHeader)
		}
		recordLen := binary.LittleEndian.Uint32(lenBuf)
		if recordLen < NonceSize+TagSize || recordLen > uint32(hdr.ChunkSize)+NonceSize+TagSize {
			return done, NewChunkIntegrityError("stream", idx, ErrCorruptHeader)
		}

		record := make([]byte, recordLen)
		if _, err := io.ReadFull(src, record); err != nil {
			return done, NewChunkIntegrityError("stream", idx, ErrCorruptHeader)
		}

		expected := chunkNonce(hdr.BaseNonce, idx)
		if !bytes.Equal(record[:NonceSize], expected) {
			return done, NewChunkIntegrityError("stream", idx, ErrChunkOrdering)
		}

		plaintext, err := engine.Decrypt(expected, record[NonceSize:])
		if err != nil {
			return done, NewChunkIntegrityError("stream", idx, ErrAuthentication)
		}

		if _, err := dst.Write(plaintext); err != nil {
			return done, NewTransientError("write", err)
		}
		done += int64(len(plaintext))
		if progress != nil {
			progress(done)
		}
	}

	if uint64(done) != hdr.OriginalSize {
		return done, NewIntegrityError("stream", fmt.Errorf("plaintext size %d does not match header %d", done, hdr.OriginalSize))
	}
	return done, nil
}
