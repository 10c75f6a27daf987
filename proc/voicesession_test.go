package proc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/blare/sys"
)

func sessionTestConfig() *sys.Config {
	return &sys.Config{
		ReadyPollAttempts:   6,
		ReadyPollInterval:   time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
	}
}

func TestSessionBinding(t *testing.T) {
	s := NewSession(sessionTestConfig(), newFakeVoiceClient())

	if _, ok := s.CurrentBinding(); ok {
		t.Fatal("fresh session should be unbound")
	}

	s.Bind(snowflake.ID(100), snowflake.ID(200))
	binding, ok := s.CurrentBinding()
	if !ok {
		t.Fatal("expected a binding after Bind")
	}
	if binding.GuildID != 100 || binding.ChannelID != 200 {
		t.Errorf("binding = %+v", binding)
	}

	s.Unbind()
	if _, ok := s.CurrentBinding(); ok {
		t.Fatal("expected no binding after Unbind")
	}
}

func TestEnsureReady(t *testing.T) {
	binding := Binding{GuildID: 100, ChannelID: 200}

	t.Run("fast path skips join", func(t *testing.T) {
		client := newFakeVoiceClient()
		client.ready = true
		s := NewSession(sessionTestConfig(), client)

		if err := s.EnsureReady(context.Background(), binding); err != nil {
			t.Fatalf("EnsureReady: %v", err)
		}

		client.mu.Lock()
		joins := client.joins
		client.mu.Unlock()
		if joins != 0 {
			t.Errorf("joins = %d, want 0", joins)
		}
	})

	t.Run("join failure propagates", func(t *testing.T) {
		client := newFakeVoiceClient()
		client.joinErr = errors.New("gateway refused")
		s := NewSession(sessionTestConfig(), client)

		if err := s.EnsureReady(context.Background(), binding); err == nil {
			t.Fatal("expected the join error to surface")
		}
	})

	t.Run("requires two consecutive ready observations", func(t *testing.T) {
		client := newFakeVoiceClient()
		client.joinSetsReady = false
		// The first observation is the fast-path check. After joining, a
		// single flap must not count; only back-to-back readiness does.
		client.readySeq = []bool{false, true, false, true, true}
		client.ready = true
		s := NewSession(sessionTestConfig(), client)

		if err := s.EnsureReady(context.Background(), binding); err != nil {
			t.Fatalf("EnsureReady: %v", err)
		}

		client.mu.Lock()
		joins := client.joins
		client.mu.Unlock()
		if joins != 1 {
			t.Errorf("joins = %d, want 1", joins)
		}
	})

	t.Run("gives up after poll budget", func(t *testing.T) {
		client := newFakeVoiceClient()
		client.joinSetsReady = false
		s := NewSession(sessionTestConfig(), client)

		if err := s.EnsureReady(context.Background(), binding); err == nil {
			t.Fatal("expected an error when readiness never settles")
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		client := newFakeVoiceClient()
		client.joinSetsReady = false
		cfg := sessionTestConfig()
		cfg.ReadyPollInterval = time.Second
		s := NewSession(cfg, client)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := s.EnsureReady(ctx, binding); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want context deadline", err)
		}
	})
}

func TestHealthDaemonClearsBindingOnRejoinFailure(t *testing.T) {
	client := newFakeVoiceClient()
	client.joinErr = errors.New("gateway refused")
	s := NewSession(sessionTestConfig(), client)
	s.Bind(snowflake.ID(100), snowflake.ID(200))

	ok, run, shutdown := s.HealthDaemon(context.Background())
	if !ok {
		t.Fatal("daemon declined to start")
	}
	go run()
	defer shutdown()

	deadline := time.After(2 * time.Second)
	for {
		if _, bound := s.CurrentBinding(); !bound {
			return
		}
		select {
		case <-deadline:
			t.Fatal("binding never cleared after rejoin failure")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHealthDaemonKeepsHealthyBinding(t *testing.T) {
	client := newFakeVoiceClient()
	client.ready = true
	s := NewSession(sessionTestConfig(), client)
	s.Bind(snowflake.ID(100), snowflake.ID(200))

	ok, run, shutdown := s.HealthDaemon(context.Background())
	if !ok {
		t.Fatal("daemon declined to start")
	}
	go run()
	defer shutdown()

	time.Sleep(50 * time.Millisecond)
	if _, bound := s.CurrentBinding(); !bound {
		t.Fatal("healthy binding was cleared")
	}
}
