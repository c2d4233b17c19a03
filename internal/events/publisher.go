package events

import (
	"log/slog"
	"sync"

	"github.com/tunefetch/tunefetch/internal/domain"
	"github.com/tunefetch/tunefetch/internal/metrics"
)

// Publisher fans task lifecycle events out to subscribers. Publish never
// blocks: a subscriber that cannot keep up loses events rather than stalling
// the orchestrator. Persistence is always at least as current as anything a
// subscriber observes, because publishers write to storage first.
type Publisher struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan domain.TaskEvent
	nextID int
	closed bool
}

// NewPublisher creates an empty publisher.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		logger: logger,
		subs:   make(map[int]chan domain.TaskEvent),
	}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns the channel plus an unsubscribe function.
func (p *Publisher) Subscribe(buffer int) (<-chan domain.TaskEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan domain.TaskEvent, buffer)
	p.subs[id] = ch

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber that has room.
func (p *Publisher) Publish(evt domain.TaskEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	for _, ch := range p.subs {
		select {
		case ch <- evt:
		default:
			metrics.EventsDropped.Inc()
			p.logger.Debug("subscriber full, event dropped",
				"task_id", evt.Task.ID, "event", evt.Type)
		}
	}
}

// Close shuts all subscriber channels. Publish becomes a no-op afterwards.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}
