// Package inodecache implements the Reflector's per-inode validate-once
// cache: a single map carrying one of four states per inode, replacing the
// reference implementation's three parallel sets (validated/corrupt/
// inconclusive) per SPEC_FULL.md §9's explicit redesign note.
package inodecache

import (
	"sync"
	"time"
)

// Status is the tagged outcome of validating a bundle.
type Status int

const (
	// Unknown means this inode has never been validated; absence from the
	// cache and Unknown are equivalent, but Status is returned explicitly
	// for callers that want to branch on it directly.
	Unknown Status = iota
	Valid
	Corrupt
	Inconclusive
)

// State records a validation outcome and when it was first observed, so the
// Scanner can apply corrupt_min_age_seconds hold-downs. The Scanner counts
// down inconclusive back-off windows itself.
type State struct {
	Status       Status
	FirstSeen    time.Time
	RetryCount   int // incremented each time an Inconclusive inode is marked Inconclusive again
	CorruptCause string
}

// Cache is a process-lifetime, concurrency-safe per-inode validation cache.
type Cache struct {
	mu    sync.Mutex
	inode map[uint64]State
}

func New() *Cache {
	return &Cache{inode: make(map[uint64]State)}
}

// Lookup returns the cached state for ino, or the zero State (Status Unknown)
// if never seen.
func (c *Cache) Lookup(ino uint64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inode[ino]
}

// MarkValid records a successful validation.
func (c *Cache) MarkValid(ino uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inode[ino] = State{Status: Valid, FirstSeen: time.Now()}
}

// MarkCorrupt records a definite corruption outcome with its cause.
func (c *Cache) MarkCorrupt(ino uint64, cause string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inode[ino] = State{Status: Corrupt, FirstSeen: time.Now(), CorruptCause: cause}
}

// MarkInconclusive records an inconclusive outcome (timeout or other
// ambiguous failure), bumping the retry counter if the inode was already
// Inconclusive. The Scanner's 100-cycle back-off does not read the counter.
func (c *Cache) MarkInconclusive(ino uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.inode[ino]
	retries := prev.RetryCount
	if prev.Status == Inconclusive {
		retries++
	}
	c.inode[ino] = State{Status: Inconclusive, FirstSeen: firstSeenOr(prev), RetryCount: retries}
}

func firstSeenOr(prev State) time.Time {
	if prev.FirstSeen.IsZero() {
		return time.Now()
	}
	return prev.FirstSeen
}

// Drop removes ino from the cache entirely, used once a bundle is fully
// fanned out and its source unlinked (the inode will never be seen again).
func (c *Cache) Drop(ino uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inode, ino)
}

// Len reports the number of tracked inodes, for heartbeat reporting.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inode)
}
