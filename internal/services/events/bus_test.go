package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := New(arbor.NewLogger())
	ch, unsubscribe := bus.Subscribe(42)
	defer unsubscribe()

	bus.Publish(interfaces.CrawlEvent{Type: interfaces.CrawlEventPageCrawled, JobID: 42})

	select {
	case ev := <-ch:
		assert.Equal(t, interfaces.CrawlEventPageCrawled, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := New(arbor.NewLogger())
	assert.NotPanics(t, func() {
		bus.Publish(interfaces.CrawlEvent{Type: interfaces.CrawlEventJobCompleted, JobID: 1})
	})
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := New(arbor.NewLogger())
	ch, unsubscribe := bus.Subscribe(7)
	unsubscribe()

	bus.Publish(interfaces.CrawlEvent{Type: interfaces.CrawlEventPageSkipped, JobID: 7})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBus_FullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New(arbor.NewLogger())
	_, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+10; i++ {
			bus.Publish(interfaces.CrawlEvent{Type: interfaces.CrawlEventPageCrawled, JobID: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}
