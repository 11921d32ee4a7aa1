package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yinyajiang/ytq/model"
)

func TestRelayFanOut(t *testing.T) {
	relay := NewRelay()
	a, stopA := relay.Subscribe(8)
	b, stopB := relay.Subscribe(8)
	defer stopA()
	defer stopB()

	relay.Added(&model.Item{ID: "x"})
	relay.Canceled("y")

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, EventAdded, ev.Type)
		assert.Equal(t, "x", ev.ID)
		require.NotNil(t, ev.Item)

		ev = <-ch
		assert.Equal(t, EventCanceled, ev.Type)
		assert.Equal(t, "y", ev.ID)
		assert.Nil(t, ev.Item)
	}
}

func TestRelayUnsubscribeClosesChannel(t *testing.T) {
	relay := NewRelay()
	ch, stop := relay.Subscribe(1)
	stop()
	stop() // second call is a no-op

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe reaches nobody and must not panic
	relay.Cleared("gone")
}

func TestRelayDropsWhenFull(t *testing.T) {
	relay := NewRelay()
	ch, stop := relay.Subscribe(1)
	defer stop()

	relay.Updated(&model.Item{ID: "first"})
	relay.Updated(&model.Item{ID: "second"})

	ev := <-ch
	assert.Equal(t, "first", ev.ID)
	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %v", ev)
	default:
	}
}
