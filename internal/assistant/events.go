package assistant

import (
	"log/slog"
	"sync"

	"vist/internal/orb"
	"vist/pkg/protocol"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventState carries an orb transition.
	EventState EventType = "state"
	// EventTranscript carries a recognized utterance.
	EventTranscript EventType = "transcript"
	// EventRecord carries one record of a backend response, as received.
	EventRecord EventType = "record"
	// EventLog reports that the chat log changed; read it with Messages.
	EventLog EventType = "log"
	// EventNotice carries a problem the user has to act on, such as a denied microphone.
	EventNotice EventType = "notice"
)

type Event struct {
	Type   EventType
	State  orb.State
	Text   string
	Record protocol.Record
}

// bus fans events out to subscribers. Slow subscribers lose events rather
// than stall the assistant.
type bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	depth int
	log   *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	return &bus{subs: make(map[chan Event]struct{}), depth: 128, log: logger}
}

func (b *bus) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Debug("event dropped", "type", ev.Type, "subscribers", dropped)
	}
}
