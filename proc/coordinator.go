package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leeineian/blare/sys"
)

// Caller-visible error taxonomy. These surface synchronously from Play and
// Stop; transient playback errors only appear on the event broadcast.
var (
	ErrNotBound      = errors.New("not bound to a voice channel")
	ErrBusy          = errors.New("another playback is in progress")
	ErrSoundNotFound = errors.New("sound not found")
	ErrFileMissing   = errors.New("sound file missing on disk")
)

// errPlaybackSuperseded marks a worker whose session was cleared by Stop
// while it was retrying. The worker winds down without publishing.
var errPlaybackSuperseded = errors.New("playback superseded by stop")

const (
	busyRecheckAttempts = 3
	busyRecheckInterval = 100 * time.Millisecond
	extraRetryBudget    = 2
)

type playbackState int

const (
	stateIdle playbackState = iota
	stateStarting
	statePlaying
)

// SoundCatalog is the persistent sound store the coordinator reads from.
type SoundCatalog interface {
	GetSound(ctx context.Context, name string) (*sys.SoundRecord, error)
}

// PlayStats receives one record per completed non-system playback.
type PlayStats interface {
	RecordPlay(ctx context.Context, sound, userID string) error
}

// DatabaseCatalog adapts the sounds table to the coordinator.
type DatabaseCatalog struct{}

func (DatabaseCatalog) GetSound(ctx context.Context, name string) (*sys.SoundRecord, error) {
	return sys.GetSound(ctx, name)
}

// DatabasePlayStats adapts the plays table to the coordinator.
type DatabasePlayStats struct{}

func (DatabasePlayStats) RecordPlay(ctx context.Context, sound, userID string) error {
	return sys.RecordPlay(ctx, sound, userID)
}

// --- Coordinator ---

type msgKind int

const (
	msgPlay msgKind = iota
	msgStop
	msgInvalidate
	msgWorkerPlaying
	msgWorkerDone
)

type playReply struct {
	id  uuid.UUID
	err error
}

type coordMsg struct {
	kind  msgKind
	sound string
	user  string
	id    uuid.UUID
	reply chan playReply
}

// Coordinator serializes all playback requests for the voice session. A
// single goroutine consumes the message channel, so the at-most-one
// playback invariant holds without locks: state transitions only ever
// happen inside the loop.
type Coordinator struct {
	cfg     *sys.Config
	session *Session
	cache   *ContentCache
	mirror  *Mirror
	client  VoiceClient
	catalog SoundCatalog
	stats   PlayStats
	Events  *Broadcaster

	ctx  context.Context
	msgs chan coordMsg
	quit chan struct{}

	// Owned by the message loop. cancel is closed by Stop so the current
	// worker's retry loop can observe it mid-backoff.
	state   playbackState
	current uuid.UUID
	cancel  chan struct{}
}

func NewCoordinator(ctx context.Context, cfg *sys.Config, session *Session, cache *ContentCache, mirror *Mirror, client VoiceClient, catalog SoundCatalog, stats PlayStats, events *Broadcaster) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		session: session,
		cache:   cache,
		mirror:  mirror,
		client:  client,
		catalog: catalog,
		stats:   stats,
		Events:  events,
		ctx:     ctx,
		msgs:    make(chan coordMsg, 16),
		quit:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Coordinator) Close() {
	close(c.quit)
}

// Play resolves the sound and spawns the playback worker, returning the
// playback session ID. Configuration, contention and resolution errors are
// returned here; everything after the worker is spawned is reported via
// the event broadcast.
func (c *Coordinator) Play(sound, requestedBy string) (uuid.UUID, error) {
	reply := make(chan playReply, 1)
	select {
	case c.msgs <- coordMsg{kind: msgPlay, sound: sound, user: requestedBy, reply: reply}:
	case <-c.quit:
		return uuid.Nil, errors.New("coordinator closed")
	}
	r := <-reply
	return r.id, r.err
}

// Stop halts the in-flight playback, if any, and clears the session
// handle. It errors when no voice binding exists.
func (c *Coordinator) Stop() error {
	reply := make(chan playReply, 1)
	select {
	case c.msgs <- coordMsg{kind: msgStop, reply: reply}:
	case <-c.quit:
		return errors.New("coordinator closed")
	}
	return (<-reply).err
}

// Invalidate drops the cache entry for a sound, deleting its mirrored
// file from disk if one exists.
func (c *Coordinator) Invalidate(sound string) {
	select {
	case c.msgs <- coordMsg{kind: msgInvalidate, sound: sound}:
	case <-c.quit:
	}
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.quit:
			return
		case <-c.ctx.Done():
			return
		case m := <-c.msgs:
			switch m.kind {
			case msgPlay:
				c.handlePlay(m)
			case msgStop:
				c.handleStop(m)
			case msgInvalidate:
				c.cache.Invalidate(m.sound)
				sys.LogPlayback(sys.MsgPlaybackInvalidated, m.sound)
			case msgWorkerPlaying:
				if m.id == c.current && c.state == stateStarting {
					c.state = statePlaying
				}
			case msgWorkerDone:
				// Always lands back on idle, crash or not. A completion
				// whose ID no longer matches belongs to a playback that
				// Stop already cleared.
				if m.id == c.current {
					c.current = uuid.Nil
					c.cancel = nil
					c.state = stateIdle
				}
			}
		}
	}
}

func (c *Coordinator) handlePlay(m coordMsg) {
	binding, bound := c.session.CurrentBinding()
	if !bound {
		m.reply <- playReply{err: ErrNotBound}
		return
	}

	if c.state != stateIdle {
		m.reply <- playReply{err: ErrBusy}
		return
	}

	// The external client may still report audio in progress for a clip
	// that just finished; absorb that race with a few short rechecks.
	if c.client.IsPlaying() {
		busy := true
		for i := 0; i < busyRecheckAttempts; i++ {
			time.Sleep(busyRecheckInterval)
			if !c.client.IsPlaying() {
				busy = false
				break
			}
		}
		if busy {
			m.reply <- playReply{err: ErrBusy}
			return
		}
	}

	entry, needMirror, err := c.resolve(m.sound)
	if err != nil {
		m.reply <- playReply{err: err}
		return
	}

	id := uuid.New()
	cancel := make(chan struct{})
	c.current = id
	c.cancel = cancel
	c.state = stateStarting
	sys.LogPlayback(sys.MsgPlaybackAccepted, m.sound, m.user, id.String())

	go c.runWorker(id, binding, entry, needMirror, m.user, cancel)

	m.reply <- playReply{id: id}
}

func (c *Coordinator) handleStop(m coordMsg) {
	if _, bound := c.session.CurrentBinding(); !bound {
		m.reply <- playReply{err: ErrNotBound}
		return
	}

	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
	c.client.Stop()
	c.current = uuid.Nil
	c.state = stateIdle
	c.Events.Publish(PlaybackStopped{})
	sys.LogPlayback(sys.MsgPlaybackStopped)
	m.reply <- playReply{}
}

// resolve produces the playback input for a sound. Catalog misses and
// missing local files are terminal for the request. Remote sounds on a
// cache miss are handed to the worker un-mirrored; the download happens
// off the message loop.
func (c *Coordinator) resolve(sound string) (CacheEntry, bool, error) {
	if entry, ok := c.cache.Lookup(sound); ok {
		return entry, false, nil
	}

	rec, err := c.catalog.GetSound(c.ctx, sound)
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("catalog lookup: %w", err)
	}
	if rec == nil {
		return CacheEntry{}, false, ErrSoundNotFound
	}

	entry := CacheEntry{
		Sound:      rec.Name,
		SourceKind: rec.SourceKind,
		Volume:     ClampVolume(rec.Volume),
	}

	switch rec.SourceKind {
	case sys.SourceLocal:
		path := rec.Location
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.cfg.SoundsDir, rec.Location)
		}
		if _, err := os.Stat(path); err != nil {
			return CacheEntry{}, false, ErrFileMissing
		}
		entry.Input = path
		c.cache.Store(entry)
		sys.LogPlayback(sys.MsgPlaybackResolvedLocal, sound, path)
		return entry, false, nil

	case sys.SourceRemote:
		entry.Input = rec.Location
		return entry, true, nil

	default:
		return CacheEntry{}, false, fmt.Errorf("unknown source kind %q for %s", rec.SourceKind, sound)
	}
}

// runWorker performs the playback attempt off the message loop and always
// reports completion back, including on panic, so the coordinator can
// never wedge in a non-idle state.
func (c *Coordinator) runWorker(id uuid.UUID, binding Binding, entry CacheEntry, needMirror bool, user string, cancel <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogError(sys.MsgPlaybackWorkerCrash, r)
			c.Events.Publish(PlaybackFailed{Message: fmt.Sprintf("playback worker crashed: %v", r)})
		}
		select {
		case c.msgs <- coordMsg{kind: msgWorkerDone, id: id}:
		case <-c.quit:
		}
	}()

	if needMirror {
		if path, err := c.mirror.Resolve(c.ctx, entry.Input); err != nil {
			// Fail open: stream the origin URL directly. The entry stays
			// uncached so the next play retries the mirror.
			sys.LogPlayback(sys.MsgPlaybackMirrorFallback, entry.Sound, err)
		} else {
			entry.Input = path
			entry.Mirrored = true
			c.cache.Store(entry)
			sys.LogPlayback(sys.MsgPlaybackResolvedMirror, entry.Sound, path)
		}
	}

	if err := c.playWithRetries(id, binding, entry, cancel); err != nil {
		if errors.Is(err, errPlaybackSuperseded) {
			sys.LogPlayback(sys.MsgPlaybackSuperseded, entry.Sound)
			return
		}
		sys.LogPlayback(sys.MsgPlaybackFailed, entry.Sound, err)
		c.Events.Publish(PlaybackFailed{Message: err.Error()})
		return
	}

	// A stop that landed while the clip was streaming cuts it short; the
	// user cancelled, so no success event and no stats.
	select {
	case <-cancel:
		sys.LogPlayback(sys.MsgPlaybackSuperseded, entry.Sound)
		return
	default:
	}

	if !c.cfg.IsSystemUser(user) {
		if err := c.stats.RecordPlay(c.ctx, entry.Sound, user); err != nil {
			sys.LogError("Failed to record play for %s: %v", entry.Sound, err)
		}
	}

	sys.LogPlayback(sys.MsgPlaybackSucceeded, entry.Sound, user)
	c.Events.Publish(PlaybackSucceeded{Sound: entry.Sound, RequestedBy: user})
}

// playWithRetries drives the voice client through the bounded retry loop,
// classifying failures by message content the way the external client
// reports them.
func (c *Coordinator) playWithRetries(id uuid.UUID, binding Binding, entry CacheEntry, cancel <-chan struct{}) error {
	if err := c.session.EnsureReady(c.ctx, binding); err != nil {
		return err
	}

	// Give the connection a moment to settle before pushing frames.
	if !waitUnlessCancelled(c.cfg.PlaybackStabilize, cancel) {
		return errPlaybackSuperseded
	}

	select {
	case c.msgs <- coordMsg{kind: msgWorkerPlaying, id: id}:
	case <-c.quit:
		return errors.New("coordinator closed")
	}

	var lastErr error
	extra := 0

	for attempt := 1; attempt <= c.cfg.PlaybackRetries; attempt++ {
		select {
		case <-cancel:
			return errPlaybackSuperseded
		default:
		}

		lastErr = c.client.Play(c.ctx, entry.Input, entry.Volume)
		if lastErr == nil {
			return nil
		}

		// A stop may have landed while Play was in flight. Checking here
		// keeps the already-playing branch from killing a playback that
		// started after this session was cleared.
		select {
		case <-cancel:
			return errPlaybackSuperseded
		default:
		}

		sys.LogPlayback(sys.MsgPlaybackRetry, attempt, c.cfg.PlaybackRetries, entry.Sound, lastErr)

		msg := strings.ToLower(lastErr.Error())
		switch {
		case strings.Contains(msg, "already playing"):
			sys.LogPlayback(sys.MsgPlaybackStopCollision)
			c.client.Stop()
			if !waitUnlessCancelled(c.cfg.PlaybackStabilize*time.Duration(attempt), cancel) {
				return errPlaybackSuperseded
			}

		case strings.Contains(msg, "not connected"):
			if err := c.session.EnsureReady(c.ctx, binding); err != nil {
				return err
			}

		case isConnectionLike(msg):
			if extra >= extraRetryBudget {
				return lastErr
			}
			extra++
			if !waitUnlessCancelled(c.cfg.PlaybackStabilize, cancel) {
				return errPlaybackSuperseded
			}
			if err := c.session.EnsureReady(c.ctx, binding); err != nil {
				return err
			}

		case isTimeoutLike(msg):
			if extra >= extraRetryBudget {
				return lastErr
			}
			extra++
			if !waitUnlessCancelled(3*c.cfg.PlaybackStabilize, cancel) {
				return errPlaybackSuperseded
			}

		default:
			// Non-recoverable
			return lastErr
		}
	}

	return lastErr
}

// waitUnlessCancelled sleeps for d, returning false if the session was
// cancelled before the wait elapsed.
func waitUnlessCancelled(d time.Duration, cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return false
	case <-time.After(d):
		return true
	}
}

func isConnectionLike(msg string) bool {
	for _, marker := range []string{"connection", "closed", "reset", "broken pipe", "gateway"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isTimeoutLike(msg string) bool {
	for _, marker := range []string{"timeout", "deadline", "process", "exit status"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// --- Volume Handling ---

// ClampVolume bounds a volume to what the transcoder accepts.
func ClampVolume(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.5 {
		return 1.5
	}
	return v
}

// ParseVolume parses a user-supplied volume string, defaulting to 1.0 on
// garbage and clamping the rest.
func ParseVolume(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1.0
	}
	return ClampVolume(v)
}
