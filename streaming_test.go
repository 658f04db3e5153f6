package blobvault

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func testEngine(t *testing.T) CipherEngine {
	t.Helper()
	engine, err := NewCipherEngine(CipherAuto, bytes.Repeat([]byte{0x42}, KeySize))
	if err != nil {
		t.Fatalf("NewCipherEngine failed: %v", err)
	}
	return engine
}

func TestStreamHeader_WriteRead(t *testing.T) {
	hdr := &StreamHeader{
		ChunkSize:    1024,
		TotalChunks:  7,
		OriginalSize: 6500,
	}
	if _, err := rand.Read(hdr.BaseNonce[:]); err != nil {
		t.Fatal(err)
	}

	buf := new(bytes.Buffer)
	written, err := hdr.WriteTo(buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if written != StreamHeaderSize {
		t.Errorf("written size: got %d, want %d", written, StreamHeaderSize)
	}

	hdr2 := &StreamHeader{}
	read, err := hdr2.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if read != written {
		t.Errorf("read size: got %d, want %d", read, written)
	}
	if hdr2.ChunkSize != hdr.ChunkSize || hdr2.TotalChunks != hdr.TotalChunks ||
		hdr2.OriginalSize != hdr.OriginalSize || hdr2.BaseNonce != hdr.BaseNonce {
		t.Errorf("header mismatch: got %+v, want %+v", hdr2, hdr)
	}
}

func TestStreamHeader_BadMagic(t *testing.T) {
	hdr := &StreamHeader{ChunkSize: 1024, TotalChunks: 1, OriginalSize: 10}
	buf := new(bytes.Buffer)
	if _, err := hdr.WriteTo(buf); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	raw[0] ^= 0xFF
	if _, err := (&StreamHeader{}).ReadFrom(bytes.NewReader(raw)); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestChunkNonce_DistinctPerIndex(t *testing.T) {
	var base [NonceSize]byte
	if _, err := rand.Read(base[:]); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for idx := uint32(0); idx < 1000; idx++ {
		n := chunkNonce(base, idx)
		if len(n) != NonceSize {
			t.Fatalf("nonce length: got %d, want %d", len(n), NonceSize)
		}
		if seen[string(n)] {
			t.Fatalf("nonce collision at index %d", idx)
		}
		seen[string(n)] = true
	}

	// Deterministic: same base and index always give the same nonce
	if !bytes.Equal(chunkNonce(base, 42), chunkNonce(base, 42)) {
		t.Error("chunk nonce is not deterministic")
	}
}

func TestValidateChunkSize(t *testing.T) {
	tests := []struct {
		size    uint32
		wantErr bool
	}{
		{MinChunkSize - 1, true},
		{MinChunkSize, false},
		{DefaultChunkSize, false},
		{MaxChunkSize, false},
		{MaxChunkSize + 1, true},
	}
	for _, tt := range tests {
		err := ValidateChunkSize(tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateChunkSize(%d): got err=%v, wantErr=%v", tt.size, err, tt.wantErr)
		}
	}
}

func TestEncryptDecryptStream_RoundTrip(t *testing.T) {
	engine := testEngine(t)
	chunkSize := uint32(256)

	sizes := []int64{0, 1, 255, 256, 257, 1000, 256 * 5}
	for _, size := range sizes {
		plain := make([]byte, size)
		if _, err := rand.Read(plain); err != nil {
			t.Fatal(err)
		}

		ct := new(bytes.Buffer)
		if err := EncryptStream(ct, bytes.NewReader(plain), size, engine, chunkSize, nil); err != nil {
			t.Fatalf("EncryptStream(%d bytes) failed: %v", size, err)
		}
		if int64(ct.Len()) != StreamingSize(size, chunkSize) {
			t.Errorf("stream size at %d: got %d, want %d", size, ct.Len(), StreamingSize(size, chunkSize))
		}

		out := new(bytes.Buffer)
		n, err := DecryptStream(out, ct, engine, nil)
		if err != nil {
			t.Fatalf("DecryptStream(%d bytes) failed: %v", size, err)
		}
		if n != size {
			t.Errorf("decrypted size: got %d, want %d", n, size)
		}
		if !bytes.Equal(out.Bytes(), plain) {
			t.Errorf("roundtrip mismatch at size %d", size)
		}
	}
}

func TestDecryptStream_Progress(t *testing.T) {
	engine := testEngine(t)
	plain := make([]byte, 700)
	ct := new(bytes.Buffer)
	if err := EncryptStream(ct, bytes.NewReader(plain), 700, engine, 256, nil); err != nil {
		t.Fatal(err)
	}

	var last int64
	if _, err := DecryptStream(io.Discard, ct, engine, func(done int64) { last = done }); err != nil {
		t.Fatal(err)
	}
	if last != 700 {
		t.Errorf("final progress: got %d, want 700", last)
	}
}

// swapChunks exchanges two chunk records in a serialized stream
func swapChunks(t *testing.T, stream []byte, a, b int) []byte {
	t.Helper()

	type span struct{ start, end int }
	var spans []span
	off := StreamHeaderSize
	for off < len(stream) {
		recLen := int(binary.LittleEndian.Uint32(stream[off : off+4]))
		spans = append(spans, span{off, off + 4 + recLen})
		off += 4 + recLen
	}
	if a >= len(spans) || b >= len(spans) {
		t.Fatalf("stream has only %d chunks", len(spans))
	}

	out := make([]byte, 0, len(stream))
	out = append(out, stream[:StreamHeaderSize]...)
	for i, sp := range spans {
		src := sp
		if i == a {
			src = spans[b]
		} else if i == b {
			src = spans[a]
		}
		out = append(out, stream[src.start:src.end]...)
	}
	return out
}

func TestDecryptStream_ReorderedChunks(t *testing.T) {
	engine := testEngine(t)
	plain := make([]byte, 256*3)
	if _, err := rand.Read(plain); err != nil {
		t.Fatal(err)
	}

	ct := new(bytes.Buffer)
	if err := EncryptStream(ct, bytes.NewReader(plain), int64(len(plain)), engine, 256, nil); err != nil {
		t.Fatal(err)
	}

	swapped := swapChunks(t, ct.Bytes(), 0, 1)
	_, err := DecryptStream(io.Discard, bytes.NewReader(swapped), engine, nil)
	if err == nil {
		t.Fatal("expected failure for reordered chunks")
	}
	if !errors.Is(err, ErrChunkOrdering) {
		t.Errorf("expected ErrChunkOrdering, got %v", err)
	}

	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %T", err)
	}
	if ie.ChunkIdx != 0 {
		t.Errorf("violation chunk index: got %d, want 0", ie.ChunkIdx)
	}
}

func TestDecryptStream_TamperedChunk(t *testing.T) {
	engine := testEngine(t)
	plain := make([]byte, 600)
	ct := new(bytes.Buffer)
	if err := EncryptStream(ct, bytes.NewReader(plain), 600, engine, 256, nil); err != nil {
		t.Fatal(err)
	}

	raw := ct.Bytes()
	// Corrupt a byte inside the second chunk's ciphertext
	recLen := int(binary.LittleEndian.Uint32(raw[StreamHeaderSize : StreamHeaderSize+4]))
	second := StreamHeaderSize + 4 + recLen
	raw[second+4+NonceSize+10] ^= 0x01

	_, err := DecryptStream(io.Discard, bytes.NewReader(raw), engine, nil)
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptStream_Truncated(t *testing.T) {
	engine := testEngine(t)
	plain := make([]byte, 600)
	ct := new(bytes.Buffer)
	if err := EncryptStream(ct, bytes.NewReader(plain), 600, engine, 256, nil); err != nil {
		t.Fatal(err)
	}

	raw := ct.Bytes()
	if _, err := DecryptStream(io.Discard, bytes.NewReader(raw[:len(raw)-10]), engine, nil); err == nil {
		t.Error("expected error for truncated stream")
	}
}

func TestCalculateChunkCount(t *testing.T) {
	tests := []struct {
		size  int64
		chunk uint32
		want  uint32
	}{
		{0, 256, 0},
		{1, 256, 1},
		{256, 256, 1},
		{257, 256, 2},
		{1024, 256, 4},
	}
	for _, tt := range tests {
		if got := CalculateChunkCount(tt.size, tt.chunk); got != tt.want {
			t.Errorf("CalculateChunkCount(%d, %d): got %d, want %d", tt.size, tt.chunk, got, tt.want)
		}
	}
}
