package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/blare/sys"
)

// Binding is the (guild, channel) pair the bot is attached to for voice.
type Binding struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// Session is the single source of truth for the voice channel binding and
// the readiness of the connection behind it.
type Session struct {
	cfg    *sys.Config
	client VoiceClient

	mu      sync.Mutex
	binding *Binding
}

func NewSession(cfg *sys.Config, client VoiceClient) *Session {
	return &Session{cfg: cfg, client: client}
}

func (s *Session) Bind(guildID, channelID snowflake.ID) {
	s.mu.Lock()
	s.binding = &Binding{GuildID: guildID, ChannelID: channelID}
	s.mu.Unlock()
	sys.LogVoice(sys.MsgVoiceBound, guildID.String(), channelID.String())
}

func (s *Session) Unbind() {
	s.mu.Lock()
	cleared := s.binding != nil
	s.binding = nil
	s.mu.Unlock()
	if cleared {
		sys.LogVoice(sys.MsgVoiceUnbound)
	}
}

func (s *Session) CurrentBinding() (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return Binding{}, false
	}
	return *s.binding, true
}

// EnsureReady verifies the voice connection is usable for the binding,
// joining and polling readiness if it is not. Readiness must be observed
// twice in a row before it counts, to reject a flapping connection.
func (s *Session) EnsureReady(ctx context.Context, binding Binding) error {
	if s.client.IsReady() {
		return nil
	}

	if err := s.client.Join(ctx, binding.GuildID, binding.ChannelID); err != nil {
		return err
	}

	consecutive := 0
	for i := 0; i < s.cfg.ReadyPollAttempts; i++ {
		if s.client.IsReady() {
			consecutive++
			if consecutive >= 2 {
				sys.LogVoice(sys.MsgVoiceReady)
				return nil
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReadyPollInterval):
		}
	}

	sys.LogVoice(sys.MsgVoiceNotReady, s.cfg.ReadyPollAttempts)
	return fmt.Errorf("voice connection not ready after %d attempts", s.cfg.ReadyPollAttempts)
}

var errHealthUnbound = errors.New("no binding")

// HealthDaemon periodically re-verifies connection readiness for the
// current binding and rejoins when it is unready. If the rejoin fails the
// binding is cleared so later play requests fail fast instead of hanging.
func (s *Session) HealthDaemon(ctx context.Context) (bool, func(), func()) {
	stop := make(chan struct{})

	run := func() {
		ticker := time.NewTicker(s.cfg.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := s.checkOnce(ctx); err != nil && err != errHealthUnbound {
					sys.LogVoice(sys.MsgVoiceHealthFail, err)
					s.Unbind()
				}
			}
		}
	}

	shutdown := func() {
		close(stop)
	}

	return true, run, shutdown
}

func (s *Session) checkOnce(ctx context.Context) error {
	binding, ok := s.CurrentBinding()
	if !ok {
		return errHealthUnbound
	}
	if s.client.IsReady() {
		return nil
	}

	sys.LogVoice(sys.MsgVoiceHealthRejoin)
	return s.EnsureReady(ctx, binding)
}
