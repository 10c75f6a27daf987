package proc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leeineian/blare/sys"
)

func testMirrorConfig() *sys.Config {
	return &sys.Config{
		MirrorProbeTimeout: 2 * time.Second,
		MirrorFetchTimeout: 2 * time.Second,
	}
}

// liveFiles returns the non-sidecar files currently in the mirror dir.
func liveFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), sidecarSuffix) || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		files = append(files, e.Name())
	}
	return files
}

func TestMirrorResolve(t *testing.T) {
	t.Run("fetches and writes sidecar", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte("audio-bytes"))
		}))
		defer srv.Close()

		dir := t.TempDir()
		m := NewMirror(dir, testMirrorConfig())

		path, err := m.Resolve(context.Background(), srv.URL+"/clip.mp3")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("mirrored file unreadable: %v", err)
		}
		if string(data) != "audio-bytes" {
			t.Errorf("content = %q", data)
		}

		sidecar, err := os.ReadFile(path + sidecarSuffix)
		if err != nil {
			t.Fatalf("sidecar unreadable: %v", err)
		}
		if string(sidecar) != `"v1"` {
			t.Errorf("sidecar = %q, want %q", sidecar, `"v1"`)
		}
		if filepath.Ext(path) != ".mp3" {
			t.Errorf("expected URL extension to carry over, got %s", path)
		}
	})

	t.Run("idempotent under unchanged validator", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte("audio-bytes"))
		}))
		defer srv.Close()

		dir := t.TempDir()
		m := NewMirror(dir, testMirrorConfig())
		url := srv.URL + "/clip.mp3"

		first, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("first Resolve: %v", err)
		}
		second, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("second Resolve: %v", err)
		}

		if first != second {
			t.Errorf("paths differ: %s vs %s", first, second)
		}
		if files := liveFiles(t, dir); len(files) != 1 {
			t.Errorf("expected exactly one live file, got %v", files)
		}
	})

	t.Run("changed validator replaces the copy", func(t *testing.T) {
		etag := `"v1"`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", etag)
			_, _ = w.Write([]byte("audio " + etag))
		}))
		defer srv.Close()

		dir := t.TempDir()
		m := NewMirror(dir, testMirrorConfig())
		url := srv.URL + "/clip.mp3"

		first, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("first Resolve: %v", err)
		}

		etag = `"v2"`
		second, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("second Resolve: %v", err)
		}

		if first == second {
			t.Error("expected a fresh file after validator change")
		}
		if _, err := os.Stat(first); !os.IsNotExist(err) {
			t.Errorf("stale file still exists: %v", err)
		}
		if _, err := os.Stat(first + sidecarSuffix); !os.IsNotExist(err) {
			t.Errorf("stale sidecar still exists: %v", err)
		}
		if files := liveFiles(t, dir); len(files) != 1 {
			t.Errorf("expected exactly one live file, got %v", files)
		}
	})

	t.Run("probe failure keeps the copy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte("audio-bytes"))
		}))

		dir := t.TempDir()
		m := NewMirror(dir, testMirrorConfig())
		url := srv.URL + "/clip.mp3"

		first, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("first Resolve: %v", err)
		}

		// Origin goes away; availability wins over freshness.
		srv.Close()

		second, err := m.Resolve(context.Background(), url)
		if err != nil {
			t.Fatalf("Resolve after origin death: %v", err)
		}
		if first != second {
			t.Errorf("paths differ: %s vs %s", first, second)
		}
	})

	t.Run("fetch timeout leaves nothing on disk", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(2 * time.Second)
		}))
		defer srv.Close()

		dir := t.TempDir()
		cfg := testMirrorConfig()
		cfg.MirrorFetchTimeout = 50 * time.Millisecond
		m := NewMirror(dir, cfg)

		if _, err := m.Resolve(context.Background(), srv.URL+"/slow.mp3"); err == nil {
			t.Fatal("expected an error from a timed-out fetch")
		}
		if files := liveFiles(t, dir); len(files) != 0 {
			t.Errorf("expected no files after a failed fetch, got %v", files)
		}
	})

	t.Run("origin error status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		dir := t.TempDir()
		m := NewMirror(dir, testMirrorConfig())

		if _, err := m.Resolve(context.Background(), srv.URL+"/missing.mp3"); err == nil {
			t.Fatal("expected an error for a 404 origin")
		}
	})
}
