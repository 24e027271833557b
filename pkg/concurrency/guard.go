package concurrency

import "sync"

// Guard serializes writers against a single piece of shared state (the
// project manifest, the lock file) while allowing any number of concurrent
// readers. It is a thin naming wrapper over sync.RWMutex so call sites read
// as "what kind of access is this" rather than "which lock method".
type Guard struct {
	mu sync.RWMutex
}

// Read runs fn with a read lock held. Multiple Read calls may run
// concurrently with each other, but never with a Write.
func (g *Guard) Read(fn func()) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn()
}

// Write runs fn with the write lock held, excluding all readers and other
// writers for its duration.
func (g *Guard) Write(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}
