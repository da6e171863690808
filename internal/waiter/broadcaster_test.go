package waiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterPublishWakesEverySubscriber(t *testing.T) {
	b := NewBroadcaster()

	ch1, closed1 := b.subscribe()
	ch2, closed2 := b.subscribe()
	require.False(t, closed1)
	require.False(t, closed2)

	b.Publish()

	assert.NotEmpty(t, ch1, "first subscriber should have been woken")
	assert.NotEmpty(t, ch2, "second subscriber should have been woken")
}

func TestBroadcasterUnsubscribeStopsWakes(t *testing.T) {
	b := NewBroadcaster()

	ch, closed := b.subscribe()
	require.False(t, closed)
	b.unsubscribe(ch)

	b.Publish()

	assert.Empty(t, ch, "unsubscribed channel must not receive further publishes")
}

func TestBroadcasterCloseClosesOutstandingChannels(t *testing.T) {
	b := NewBroadcaster()

	ch, closed := b.subscribe()
	require.False(t, closed)

	b.Close()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed once the broadcaster closes")
}

func TestBroadcasterSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster()
	b.Close()

	ch, closed := b.subscribe()
	require.True(t, closed, "subscribing to a closed broadcaster must report closed=true")

	_, ok := <-ch
	assert.False(t, ok)
}
