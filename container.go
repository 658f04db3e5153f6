package blobvault

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/absfs/absfs"
	"github.com/rs/zerolog"
)

// Container manages the single large pre-allocated file holding all
// ciphertext. The file carries no header or magic: it is filled entirely
// with cryptographic randomness on creation and written regions remain
// statistically indistinguishable from untouched space. The only structure
// is the final 16 bytes, an XOR-masked (offset, magic) cursor record that
// itself reads as random.

const (
	// DefaultContainerSize is the default container size (500 MiB)
	DefaultContainerSize = 500 << 20

	// cursorRecordSize is the trailing cursor record length
	cursorRecordSize = 16

	// fillChunkSize bounds memory during the initial random fill (4 MiB)
	fillChunkSize = 4 << 20

	// cursorMagic authenticates the cursor record after unmasking
	cursorMagic = uint64(0x42564c5443555253)

	// cursorOffsetMask and cursorMagicMask keep the trailing record
	// indistinguishable from the surrounding randomness at rest
	cursorOffsetMask = uint64(0x9e3779b97f4a7c15)
	cursorMagicMask  = uint64(0x6a09e667f3bcc908)
)

// Container is the fixed-size random-filled backing file. Creation runs
// asynchronously; all reads and writes block on a one-time readiness gate.
type Container struct {
	fs   absfs.FileSystem
	path string
	size int64
	log  zerolog.Logger

	ready    chan struct{}
	initErr  error
	initOnce sync.Once
	started  bool

	mu sync.Mutex // guards file handle and cursor writes
	f  absfs.File

	fillProgress func(done, total int64)
}

// NewContainer creates a container handle. Init must be called before use.
func NewContainer(fs absfs.FileSystem, path string, size int64, log zerolog.Logger) (*Container, error) {
	if fs == nil {
		return nil, NewConfigError("fs", "filesystem cannot be nil")
	}
	if size < cursorRecordSize+1 {
		return nil, NewConfigError("size", fmt.Sprintf("container size %d too small", size))
	}
	return &Container{
		fs:    fs,
		path:  path,
		size:  size,
		log:   log,
		ready: make(chan struct{}),
	}, nil
}

// SetFillProgress registers a callback receiving cumulative fill progress
// during initial creation. Must be called before Init.
func (c *Container) SetFillProgress(fn func(done, total int64)) {
	c.fillProgress = fn
}

// Init opens the container, allocating and random-filling it first if it
// does not exist. The fill runs off the calling goroutine; use WaitReady
// (or any I/O method, which blocks on the gate) to observe completion.
func (c *Container) Init() {
	c.initOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go func() {
			defer close(c.ready)
			c.initErr = c.initialize()
			if c.initErr != nil {
				c.log.Error().Err(c.initErr).Str("path", c.path).Msg("container initialization failed")
			}
		}()
	})
}

func (c *Container) initialize() error {
	info, err := c.fs.Stat(c.path)
	if err == nil {
		if info.Size() != c.size {
			return NewConfigError("size", fmt.Sprintf("existing container is %d bytes, configured size is %d", info.Size(), c.size))
		}
		f, err := c.fs.OpenFile(c.path, os.O_RDWR, 0600)
		if err != nil {
			return NewTransientError("open", err)
		}
		c.f = f
		return nil
	}

	f, err := c.fs.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return NewTransientError("create", err)
	}

	// Fill the whole file with randomness in bounded chunks.
	var done int64
	for done < c.size {
		n := int64(fillChunkSize)
		if remaining := c.size - done; remaining < n {
			n = remaining
		}
		chunk, err := RandomBytes(int(n))
		if err != nil {
			f.Close()
			return NewTransientError("fill", err)
		}
		if _, err := f.WriteAt(chunk, done); err != nil {
			f.Close()
			return NewTransientError("fill", err)
		}
		done += n
		if c.fillProgress != nil {
			c.fillProgress(done, c.size)
		}
	}

	c.f = f
	if err := c.writeCursor(0); err != nil {
		f.Close()
		c.f = nil
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		c.f = nil
		return NewTransientError("sync", err)
	}

	c.log.Info().Str("path", c.path).Int64("size", c.size).Msg("container created")
	return nil
}

// WaitReady blocks until initialization completes and reports its outcome
func (c *Container) WaitReady() error {
	<-c.ready
	return c.initErr
}

// UsableCapacity returns the container capacity available for file data
func (c *Container) UsableCapacity() int64 {
	return c.size - cursorRecordSize
}

// Cursor reads the persisted allocation cursor. A record that does not
// unmask to the expected magic means a fresh container; the cursor is 0.
func (c *Container) Cursor() (int64, error) {
	if err := c.WaitReady(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCursorLocked()
}

func (c *Container) readCursorLocked() (int64, error) {
	record := make([]byte, cursorRecordSize)
	if _, err := c.f.ReadAt(record, c.size-cursorRecordSize); err != nil {
		return 0, NewTransientError("read", err)
	}

	offset := binary.LittleEndian.Uint64(record[0:8]) ^ cursorOffsetMask
	magic := binary.LittleEndian.Uint64(record[8:16]) ^ cursorMagicMask
	if magic != cursorMagic || int64(offset) < 0 || int64(offset) > c.UsableCapacity() {
		return 0, nil
	}
	return int64(offset), nil
}

func (c *Container) writeCursor(offset int64) error {
	record := make([]byte, cursorRecordSize)
	binary.LittleEndian.PutUint64(record[0:8], uint64(offset)^cursorOffsetMask)
	binary.LittleEndian.PutUint64(record[8:16], cursorMagic^cursorMagicMask)
	if _, err := c.f.WriteAt(record, c.size-cursorRecordSize); err != nil {
		return NewTransientError("write", err)
	}
	return nil
}

// Allocate reserves size bytes and returns the region's offset. The
// allocation point is max(persisted cursor, indexCursor), so regions live
// in either bookkeeping record never overlap. The persisted cursor
// advances past the new region before Allocate returns.
func (c *Container) Allocate(size, indexCursor int64) (int64, error) {
	if err := c.WaitReady(); err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, NewConfigError("size", "allocation size must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	persisted, err := c.readCursorLocked()
	if err != nil {
		return 0, err
	}

	offset := persisted
	if indexCursor > offset {
		offset = indexCursor
	}

	if offset+size > c.UsableCapacity() {
		return 0, &CapacityError{Requested: size, Available: c.UsableCapacity() - offset}
	}

	if err := c.writeCursor(offset + size); err != nil {
		return 0, err
	}
	if err := c.f.Sync(); err != nil {
		return 0, NewTransientError("sync", err)
	}
	return offset, nil
}

// WriteAt writes raw bytes at the given container offset
func (c *Container) WriteAt(p []byte, offset int64) error {
	if err := c.WaitReady(); err != nil {
		return err
	}
	if offset < 0 || offset+int64(len(p)) > c.UsableCapacity() {
		return NewConfigError("offset", fmt.Sprintf("write of %d bytes at %d exceeds usable capacity %d", len(p), offset, c.UsableCapacity()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.f.WriteAt(p, offset); err != nil {
		return NewTransientError("write", err)
	}
	return nil
}

// Sync flushes buffered container writes to stable storage
func (c *Container) Sync() error {
	if err := c.WaitReady(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.f.Sync(); err != nil {
		return NewTransientError("sync", err)
	}
	return nil
}

// ReadAt reads length raw bytes from the given container offset
func (c *Container) ReadAt(offset, length int64) ([]byte, error) {
	if err := c.WaitReady(); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > c.UsableCapacity() {
		return nil, NewConfigError("offset", fmt.Sprintf("read of %d bytes at %d exceeds usable capacity %d", length, offset, c.UsableCapacity()))
	}

	buf := make([]byte, length)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.f.ReadAt(buf, offset); err != nil {
		return nil, NewTransientError("read", err)
	}
	return buf, nil
}

// Free overwrites a region with fresh random bytes. Deleted content must
// be unrecoverable, and a randomized region stays indistinguishable from
// space that was never written.
func (c *Container) Free(offset, length int64) error {
	if err := c.WaitReady(); err != nil {
		return err
	}
	if offset < 0 || length < 0 || offset+length > c.UsableCapacity() {
		return NewConfigError("offset", "region out of range")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var done int64
	for done < length {
		n := int64(fillChunkSize)
		if remaining := length - done; remaining < n {
			n = remaining
		}
		chunk, err := RandomBytes(int(n))
		if err != nil {
			return NewTransientError("free", err)
		}
		if _, err := c.f.WriteAt(chunk, offset+done); err != nil {
			return NewTransientError("free", err)
		}
		done += n
	}
	if err := c.f.Sync(); err != nil {
		return NewTransientError("sync", err)
	}
	return nil
}

// Close releases the backing file. Pending initialization is waited for
// first so a half-filled container is never left behind silently.
func (c *Container) Close() error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}
	<-c.ready

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
