package proc

import "sync"

// Playback outcomes are broadcast rather than returned: Play hands back
// control as soon as the worker is spawned, so the interaction layer
// subscribes here to learn how it went.

type Event interface {
	playbackEvent()
}

type PlaybackSucceeded struct {
	Sound       string
	RequestedBy string
}

type PlaybackFailed struct {
	Message string
}

type PlaybackStopped struct{}

func (PlaybackSucceeded) playbackEvent() {}
func (PlaybackFailed) playbackEvent()    {}
func (PlaybackStopped) playbackEvent()   {}

// Broadcaster fans playback events out to all current subscribers.
// Publishing never blocks; a subscriber that stops draining its channel
// misses events instead of stalling the coordinator.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new listener. The returned cancel function must be
// called when the listener is done, typically via defer.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
