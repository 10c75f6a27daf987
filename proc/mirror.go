package proc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/leeineian/blare/sys"
	"golang.org/x/time/rate"
)

const sidecarSuffix = ".etag"

// Mirror downloads remotely hosted sounds into local storage so playback
// does not depend on live network streaming. Files are named by a short
// hash of the origin URL plus the fetch timestamp; the last-seen validator
// (ETag) lives in a same-named sidecar file.
type Mirror struct {
	dir          string
	client       *http.Client
	probeTimeout time.Duration
	fetchTimeout time.Duration

	// Throttles origin revalidation probes so a spammed cached sound
	// cannot hammer the remote host.
	probeLimiter *rate.Limiter
}

func NewMirror(dir string, cfg *sys.Config) *Mirror {
	return &Mirror{
		dir:          dir,
		client:       sys.HttpClient,
		probeTimeout: cfg.MirrorProbeTimeout,
		fetchTimeout: cfg.MirrorFetchTimeout,
		probeLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Resolve returns a local file path for the given origin URL, fetching or
// refetching as needed. On any error the caller falls back to streaming
// the origin URL directly; mirroring is never a hard dependency.
func (m *Mirror) Resolve(ctx context.Context, originURL string) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", err
	}

	hash := urlHash(originURL)

	if existing := m.findExisting(hash); existing != "" {
		if m.revalidate(ctx, originURL, existing) {
			return existing, nil
		}
		sys.LogMirror(sys.MsgMirrorStale, originURL)
		_ = os.Remove(existing)
		_ = os.Remove(existing + sidecarSuffix)
	}

	return m.fetch(ctx, originURL, hash)
}

// findExisting returns the newest live mirrored file for the hash, if any.
func (m *Mirror) findExisting(hash string) string {
	matches, err := filepath.Glob(filepath.Join(m.dir, hash+"_*"))
	if err != nil {
		return ""
	}

	var newest string
	for _, match := range matches {
		if strings.HasSuffix(match, sidecarSuffix) {
			continue
		}
		if newest == "" || match > newest {
			newest = match
		}
	}
	return newest
}

// revalidate probes the origin and compares its validator against the
// sidecar. It fails open: a probe error, a rate-limited probe, or a
// missing validator all keep the local copy, favoring availability over
// freshness. Only a definite validator mismatch reports stale.
func (m *Mirror) revalidate(ctx context.Context, originURL, localPath string) bool {
	if !m.probeLimiter.Allow() {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, originURL, nil)
	if err != nil {
		sys.LogMirror(sys.MsgMirrorProbeFailed, originURL, err)
		return true
	}

	resp, err := m.client.Do(req)
	if err != nil {
		sys.LogMirror(sys.MsgMirrorProbeFailed, originURL, err)
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sys.LogMirror(sys.MsgMirrorProbeFailed, originURL, fmt.Errorf("status %d", resp.StatusCode))
		return true
	}

	remote := resp.Header.Get("ETag")
	if remote == "" {
		return true
	}

	stored, err := os.ReadFile(localPath + sidecarSuffix)
	if err != nil {
		return true
	}

	if strings.TrimSpace(string(stored)) == remote {
		sys.LogMirror(sys.MsgMirrorRevalidated, originURL)
		return true
	}
	return false
}

// fetch downloads the origin content to a freshly timestamped file,
// evicting any other copies of the same hash first so at most one live
// pair exists per URL at any time.
func (m *Mirror) fetch(ctx context.Context, originURL, hash string) (string, error) {
	m.evictAll(hash)

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, originURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("origin returned status %d", resp.StatusCode)
	}

	name := fmt.Sprintf("%s_%d%s", hash, time.Now().UnixNano(), urlExt(originURL))
	finalPath := filepath.Join(m.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		_ = os.WriteFile(finalPath+sidecarSuffix, []byte(etag), 0644)
	}

	sys.LogMirror(sys.MsgMirrorFetched, originURL, finalPath)
	return finalPath, nil
}

// evictAll deletes every file and sidecar sharing the hash.
func (m *Mirror) evictAll(hash string) {
	matches, err := filepath.Glob(filepath.Join(m.dir, hash+"_*"))
	if err != nil {
		return
	}
	for _, match := range matches {
		if !strings.HasSuffix(match, sidecarSuffix) {
			sys.LogMirror(sys.MsgMirrorEvictedStale, match)
		}
		_ = os.Remove(match)
	}
}

func urlHash(originURL string) string {
	sum := sha256.Sum256([]byte(originURL))
	return hex.EncodeToString(sum[:])[:16]
}

// urlExt extracts a sane file extension from the URL path, if it has one.
func urlExt(originURL string) string {
	u, err := url.Parse(originURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 8 {
		return ""
	}
	return ext
}
