package blobvault

import "sync"

// KeepActive is a reference-counted "keep active" signal. Long bulk
// operations acquire it for their duration; the host consults Active
// before applying any inactivity-based locking policy. The core owns the
// counter, never the policy.
type KeepActive struct {
	mu sync.Mutex
	n  int
}

// Acquire increments the counter and returns a release function. Release
// is safe to call more than once; only the first call decrements, so a
// deferred release on every exit path cannot unbalance the counter.
func (k *KeepActive) Acquire() (release func()) {
	k.mu.Lock()
	k.n++
	k.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			k.n--
			k.mu.Unlock()
		})
	}
}

// Active reports whether any holder currently requires the host to stay
// active
func (k *KeepActive) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.n > 0
}
