package blobvault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SingleShotOverhead is the ciphertext expansion of single-shot encryption:
// 12-byte nonce plus 16-byte tag.
const SingleShotOverhead = NonceSize + TagSize

// Encrypt performs authenticated single-shot encryption of plaintext under
// a 32-byte key. Output layout is nonce(12) ‖ ciphertext ‖ tag(16).
func Encrypt(plaintext, key []byte) ([]byte, error) {
	engine, err := NewCipherEngine(CipherAuto, key)
	if err != nil {
		return nil, err
	}
	return encryptWithEngine(engine, plaintext)
}

// Decrypt reverses Encrypt. It fails with an IntegrityError on tag mismatch
// and never returns partial plaintext.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	engine, err := NewCipherEngine(CipherAuto, key)
	if err != nil {
		return nil, err
	}
	return decryptWithEngine(engine, ciphertext)
}

func encryptWithEngine(engine CipherEngine, plaintext []byte) ([]byte, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, &TransientError{Operation: "encrypt", Message: "randomness failure", Err: err}
	}

	ct, err := engine.Encrypt(nonce, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(ct))
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

func decryptWithEngine(engine CipherEngine, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < SingleShotOverhead {
		return nil, NewIntegrityError("ciphertext", ErrCorruptHeader)
	}
	return engine.Decrypt(ciphertext[:NonceSize], ciphertext[NonceSize:])
}

// SingleShotSize returns the exact ciphertext size for a plaintext of n
// bytes encrypted single-shot
func SingleShotSize(n int64) int64 {
	return n + SingleShotOverhead
}

// EncryptedSize returns the exact content ciphertext size for a plaintext
// of n bytes under the size-dispatch rule: single-shot at or below the
// threshold, streaming above it. Closed form so callers can pre-allocate.
func EncryptedSize(n, threshold int64, chunkSize uint32) int64 {
	if n <= threshold {
		return SingleShotSize(n)
	}
	return StreamingSize(n, chunkSize)
}

// FileCiphertextSize returns the total on-container size of an encrypted
// file: the length prefix, the encrypted fixed header, and the content
// ciphertext.
func FileCiphertextSize(contentLen, threshold int64, chunkSize uint32) int64 {
	return 4 + SingleShotSize(FileHeaderSize) + EncryptedSize(contentLen, threshold, chunkSize)
}

// EncryptFileTo encrypts a file as [u32 headerCiphertextLen] ‖
// headerCiphertext ‖ contentCiphertext. The fixed header and the content
// are encrypted independently; content at or below threshold bytes uses
// single-shot encryption, larger content streams chunk by chunk so peak
// memory stays near one chunk.
func EncryptFileTo(dst io.Writer, src io.Reader, hdr *FileHeader, engine CipherEngine, threshold int64, chunkSize uint32, progress func(done int64)) error {
	headerCt, err := encryptWithEngine(engine, hdr.Encode())
	if err != nil {
		return fmt.Errorf("failed to encrypt file header: %w", err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerCt)))
	if _, err := dst.Write(lenBuf[:]); err != nil {
		return NewTransientError("write", err)
	}
	if _, err := dst.Write(headerCt); err != nil {
		return NewTransientError("write", err)
	}

	size := int64(hdr.OriginalSize)
	if size <= threshold {
		plaintext := make([]byte, size)
		if _, err := io.ReadFull(src, plaintext); err != nil {
			return NewTransientError("read", err)
		}
		ct, err := encryptWithEngine(engine, plaintext)
		if err != nil {
			return err
		}
		if _, err := dst.Write(ct); err != nil {
			return NewTransientError("write", err)
		}
		if progress != nil {
			progress(size)
		}
		return nil
	}

	return EncryptStream(dst, src, size, engine, chunkSize, progress)
}

// DecryptFileFrom decrypts a file produced by EncryptFileTo, writing the
// content plaintext to dst and returning the decrypted header. The total
// passed to progress is the original size from the decrypted header. On any
// integrity failure nothing useful is written beyond the bytes already
// verified chunk by chunk; single-shot content is all-or-nothing.
func DecryptFileFrom(dst io.Writer, src io.Reader, engine CipherEngine, threshold int64, progress func(done, total int64)) (*FileHeader, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(src, lenBuf[:]); err != nil {
		return nil, NewIntegrityError("file", ErrCorruptHeader)
	}
	headerCtLen := binary.LittleEndian.Uint32(lenBuf[:])
	if headerCtLen != uint32(SingleShotSize(FileHeaderSize)) {
		return nil, NewIntegrityError("file", ErrCorruptHeader)
	}

	headerCt := make([]byte, headerCtLen)
	if _, err := io.ReadFull(src, headerCt); err != nil {
		return nil, NewIntegrityError("file", ErrCorruptHeader)
	}

	headerPlain, err := decryptWithEngine(engine, headerCt)
	if err != nil {
		return nil, err
	}
	hdr, err := DecodeFileHeader(headerPlain)
	if err != nil {
		return nil, err
	}

	size := int64(hdr.OriginalSize)
	if size <= threshold {
		ct := make([]byte, SingleShotSize(size))
		if _, err := io.ReadFull(src, ct); err != nil {
			return nil, NewIntegrityError("file", ErrCorruptHeader)
		}
		plaintext, err := decryptWithEngine(engine, ct)
		if err != nil {
			return nil, err
		}
		if _, err := dst.Write(plaintext); err != nil {
			return nil, NewTransientError("write", err)
		}
		if progress != nil {
			progress(size, size)
		}
		return hdr, nil
	}

	var streamProgress func(done int64)
	if progress != nil {
		streamProgress = func(done int64) { progress(done, size) }
	}
	n, err := DecryptStream(dst, src, engine, streamProgress)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, NewIntegrityError("file", fmt.Errorf("content size %d does not match header %d", n, size))
	}
	return hdr, nil
}

// EncryptFile encrypts content with hdr under key, returning the complete
// file ciphertext
func EncryptFile(content []byte, hdr *FileHeader, key []byte, threshold int64, chunkSize uint32) ([]byte, error) {
	engine, err := NewCipherEngine(CipherAuto, key)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.Grow(int(FileCiphertextSize(int64(len(content)), threshold, chunkSize)))
	if err := EncryptFileTo(buf, bytes.NewReader(content), hdr, engine, threshold, chunkSize, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecryptFile decrypts a complete file ciphertext, returning the header
// and the content plaintext
func DecryptFile(data, key []byte, threshold int64) (*FileHeader, []byte, error) {
	engine, err := NewCipherEngine(CipherAuto, key)
	if err != nil {
		return nil, nil, err
	}

	buf := new(bytes.Buffer)
	hdr, err := DecryptFileFrom(buf, bytes.NewReader(data), engine, threshold, nil)
	if err != nil {
		return nil, nil, err
	}
	return hdr, buf.Bytes(), nil
}
