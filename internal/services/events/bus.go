package events

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
)

// bufferSize is how many pending events a slow subscriber may queue
// before Publish starts dropping events for it rather than blocking the
// publisher.
const bufferSize = 64

// Bus is the in-process implementation of interfaces.CrawlEventBus.
// Publish is fire-and-forget: an event with no subscribers, or a
// subscriber whose channel is full, is simply dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64][]chan interfaces.CrawlEvent
	logger arbor.ILogger
}

// New returns an empty Bus.
func New(logger arbor.ILogger) *Bus {
	return &Bus{
		subs:   make(map[int64][]chan interfaces.CrawlEvent),
		logger: logger,
	}
}

// Publish implements interfaces.CrawlEventBus.
func (b *Bus) Publish(event interfaces.CrawlEvent) {
	b.mu.RLock()
	chans := b.subs[event.JobID]
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			b.logger.Warn().
				Int64("job_id", event.JobID).
				Str("event_type", string(event.Type)).
				Msg("crawl event bus subscriber is full, dropping event")
		}
	}
}

// Subscribe implements interfaces.CrawlEventBus.
func (b *Bus) Subscribe(jobID int64) (<-chan interfaces.CrawlEvent, func()) {
	ch := make(chan interfaces.CrawlEvent, bufferSize)

	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[jobID]
		for i, c := range list {
			if c == ch {
				b.subs[jobID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[jobID]) == 0 {
			delete(b.subs, jobID)
		}
		close(ch)
	}

	return ch, unsubscribe
}
