package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventDomainStarted, Domain: "a.example.com"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventDomainStarted, ev.Type)
		assert.Equal(t, "a.example.com", ev.Domain)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBrokerSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	// Overflow the per-subscriber buffer without draining
	for i := 0; i < 200; i++ {
		b.Publish(&Event{Type: EventPhaseCompleted})
	}

	// Give the distribution loop time to flush the broker buffer
	time.Sleep(50 * time.Millisecond)

	drained := 0
	for {
		select {
		case <-sub:
			drained++
			continue
		default:
		}
		break
	}
	require.Greater(t, drained, 0)
	assert.LessOrEqual(t, drained, 200)
}

func TestNilBrokerPublishIsNoOp(t *testing.T) {
	var b *Broker
	assert.NotPanics(t, func() {
		b.Publish(&Event{Type: EventRunStarted})
	})
}

func TestBrokerStopIsIdempotent(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	assert.NotPanics(t, b.Stop)

	// Publishing after stop must not block
	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventRunCompleted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after stop")
	}
}
