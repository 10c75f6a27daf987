package proc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leeineian/blare/sys"
)

func TestContentCache(t *testing.T) {
	t.Run("store and lookup", func(t *testing.T) {
		cache := NewContentCache()

		entry := CacheEntry{
			Sound:      "ding.mp3",
			SourceKind: sys.SourceLocal,
			Input:      "/sounds/ding.mp3",
			Volume:     1.0,
		}
		cache.Store(entry)

		got, ok := cache.Lookup("ding.mp3")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if got != entry {
			t.Errorf("got %+v, want %+v", got, entry)
		}
		if cache.Len() != 1 {
			t.Errorf("Len() = %d, want 1", cache.Len())
		}
	})

	t.Run("lookup miss", func(t *testing.T) {
		cache := NewContentCache()
		if _, ok := cache.Lookup("nope"); ok {
			t.Fatal("expected cache miss")
		}
	})

	t.Run("invalidate removes entry", func(t *testing.T) {
		cache := NewContentCache()
		cache.Store(CacheEntry{Sound: "ding.mp3", Input: "/sounds/ding.mp3"})

		cache.Invalidate("ding.mp3")

		if _, ok := cache.Lookup("ding.mp3"); ok {
			t.Fatal("expected miss after invalidation")
		}
	})

	t.Run("invalidate deletes mirrored file and sidecar", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "abc123_456.mp3")
		sidecar := file + sidecarSuffix

		if err := os.WriteFile(file, []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(sidecar, []byte(`"etag-1"`), 0644); err != nil {
			t.Fatal(err)
		}

		cache := NewContentCache()
		cache.Store(CacheEntry{
			Sound:      "remote-ding",
			SourceKind: sys.SourceRemote,
			Input:      file,
			Mirrored:   true,
		})

		cache.Invalidate("remote-ding")

		if _, err := os.Stat(file); !os.IsNotExist(err) {
			t.Errorf("mirrored file still exists: %v", err)
		}
		if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
			t.Errorf("sidecar still exists: %v", err)
		}
	})

	t.Run("invalidate keeps local files", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "ding.mp3")
		if err := os.WriteFile(file, []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}

		cache := NewContentCache()
		cache.Store(CacheEntry{
			Sound:      "ding.mp3",
			SourceKind: sys.SourceLocal,
			Input:      file,
		})

		cache.Invalidate("ding.mp3")

		if _, err := os.Stat(file); err != nil {
			t.Errorf("local file should survive invalidation: %v", err)
		}
	})
}
