// Package events fans out render and job progress to in-process
// subscribers such as the websocket stream.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

type Type string

const (
	TypeJobStage    Type = "job.stage"
	TypeJobDone     Type = "job.done"
	TypeJobFailed   Type = "job.failed"
	TypeRenderAdded Type = "render.created"
)

type Event struct {
	Type     Type      `json:"type"`
	JobID    string    `json:"job_id,omitempty"`
	RenderID string    `json:"render_id,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Broker delivers every published event to all current subscribers. A slow
// subscriber whose queue is full misses events rather than blocking
// publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[int]chan Event),
		logger: logging.WithComponent(logging.OrDiscard(logger), "events"),
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug("subscriber queue full, dropping event", "subscriber", id, "type", e.Type)
		}
	}
}

// Subscribers is the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
