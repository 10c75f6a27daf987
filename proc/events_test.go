package proc

import (
	"testing"
	"time"
)

func TestBroadcaster(t *testing.T) {
	t.Run("fans out to every subscriber", func(t *testing.T) {
		b := NewBroadcaster()

		first, cancelFirst := b.Subscribe()
		defer cancelFirst()
		second, cancelSecond := b.Subscribe()
		defer cancelSecond()

		b.Publish(PlaybackSucceeded{Sound: "ding.mp3", RequestedBy: "alice"})

		for _, ch := range []<-chan Event{first, second} {
			select {
			case e := <-ch:
				if _, ok := e.(PlaybackSucceeded); !ok {
					t.Errorf("got %T, want PlaybackSucceeded", e)
				}
			case <-time.After(time.Second):
				t.Fatal("subscriber never received the event")
			}
		}
	})

	t.Run("cancel removes the subscriber", func(t *testing.T) {
		b := NewBroadcaster()

		_, cancel := b.Subscribe()
		if b.SubscriberCount() != 1 {
			t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
		}

		cancel()
		if b.SubscriberCount() != 0 {
			t.Fatalf("SubscriberCount() = %d, want 0", b.SubscriberCount())
		}

		// A second cancel must not panic on the already-closed channel.
		cancel()
	})

	t.Run("publish never blocks on a full subscriber", func(t *testing.T) {
		b := NewBroadcaster()

		_, cancel := b.Subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				b.Publish(PlaybackStopped{})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on an undrained subscriber")
		}
	})
}
