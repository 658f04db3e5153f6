package blobvault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// FileHeaderSize is the fixed size of the per-file header that is
	// encrypted and prefixed to every file's ciphertext
	FileHeaderSize = 256

	// headerFilenameSize is the padded/truncated filename field length
	headerFilenameSize = 100

	// headerMimeSize is the padded/truncated mime type field length
	headerMimeSize = 50
)

// FileHeader is the fixed 256-byte structure prefixed to file ciphertext.
//
// Layout (little-endian):
//
//	fileId       16 bytes
//	originalSize u64
//	createdAt    f64 (unix seconds)
//	filename     100 bytes (UTF-8, zero padded, truncated if longer)
//	mimeType     50 bytes (UTF-8, zero padded, truncated if longer)
//	padding      zero bytes to 256
type FileHeader struct {
	FileID       uuid.UUID
	OriginalSize uint64
	CreatedAt    float64 // unix seconds
	Filename     string
	MimeType     string
}

// NewFileHeader creates a header for a new file with a fresh random ID
func NewFileHeader(size uint64, filename, mimeType string) *FileHeader {
	return &FileHeader{
		FileID:       uuid.New(),
		OriginalSize: size,
		CreatedAt:    float64(time.Now().UnixNano()) / float64(time.Second),
		Filename:     filename,
		MimeType:     mimeType,
	}
}

// WriteTo writes the fixed 256-byte header to the given writer
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	buf.Grow(FileHeaderSize)

	buf.Write(h.FileID[:])

	if err := binary.Write(buf, binary.LittleEndian, h.OriginalSize); err != nil {
		return 0, fmt.Errorf("failed to write original size: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, math.Float64bits(h.CreatedAt)); err != nil {
		return 0, fmt.Errorf("failed to write creation time: %w", err)
	}

	buf.Write(padField(h.Filename, headerFilenameSize))
	buf.Write(padField(h.MimeType, headerMimeSize))

	// Zero padding to the fixed size
	padding := make([]byte, FileHeaderSize-buf.Len())
	buf.Write(padding)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads the fixed 256-byte header from the given reader
func (h *FileHeader) ReadFrom(r io.Reader) (int64, error) {
	raw := make([]byte, FileHeaderSize)
	n, err := io.ReadFull(r, raw)
	if err != nil {
		return int64(n), NewIntegrityError("file header", ErrCorruptHeader)
	}

	copy(h.FileID[:], raw[0:16])
	h.OriginalSize = binary.LittleEndian.Uint64(raw[16:24])
	h.CreatedAt = math.Float64frombits(binary.LittleEndian.Uint64(raw[24:32]))
	h.Filename = unpadField(raw[32 : 32+headerFilenameSize])
	h.MimeType = unpadField(raw[32+headerFilenameSize : 32+headerFilenameSize+headerMimeSize])

	return int64(n), nil
}

// Encode returns the header as a fixed 256-byte slice
func (h *FileHeader) Encode() []byte {
	buf := new(bytes.Buffer)
	h.WriteTo(buf) // cannot fail on a bytes.Buffer
	return buf.Bytes()
}

// DecodeFileHeader parses a fixed 256-byte header
func DecodeFileHeader(raw []byte) (*FileHeader, error) {
	if len(raw) != FileHeaderSize {
		return nil, NewIntegrityError("file header", ErrCorruptHeader)
	}
	h := &FileHeader{}
	if _, err := h.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return h, nil
}

// padField truncates s to size bytes and zero-pads the remainder.
// Truncation is byte-wise; a multi-byte rune split at the boundary is
// dropped rather than emitted partially.
func padField(s string, size int) []byte {
	out := make([]byte, size)
	b := []byte(s)
	if len(b) > size {
		b = b[:size]
		for len(b) > 0 && b[len(b)-1] >= 0x80 && b[len(b)-1] < 0xC0 {
			b = b[:len(b)-1]
		}
		if len(b) > 0 && b[len(b)-1] >= 0xC0 {
			b = b[:len(b)-1]
		}
	}
	copy(out, b)
	return out
}

// unpadField strips trailing zero padding
func unpadField(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
