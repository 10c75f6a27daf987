package proc

import (
	"os"
	"sync"

	"github.com/leeineian/blare/sys"
)

// CacheEntry is the resolved playback input for a sound. Input is a local
// file path for local and mirrored sounds, or the origin URL when mirroring
// failed and playback streams the remote directly.
type CacheEntry struct {
	Sound      string
	SourceKind sys.SourceKind
	Input      string
	Volume     float64
	Mirrored   bool
}

// ContentCache maps sound names to resolved playback inputs so a play
// request does not hit the catalog every time. Entries never expire on
// their own; correctness relies on explicit invalidation when a sound
// record changes or its file is edited on disk.
type ContentCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

func NewContentCache() *ContentCache {
	return &ContentCache{
		entries: make(map[string]CacheEntry),
	}
}

func (c *ContentCache) Lookup(sound string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[sound]
	return entry, ok
}

func (c *ContentCache) Store(entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Sound] = entry
}

// Invalidate removes the entry for a sound. If the entry pointed at a
// mirrored file, the file and its validator sidecar are deleted from disk;
// the next play refetches from the origin.
func (c *ContentCache) Invalidate(sound string) {
	c.mu.Lock()
	entry, ok := c.entries[sound]
	if ok {
		delete(c.entries, sound)
	}
	c.mu.Unlock()

	if ok && entry.Mirrored {
		_ = os.Remove(entry.Input)
		_ = os.Remove(entry.Input + sidecarSuffix)
	}
}

func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
