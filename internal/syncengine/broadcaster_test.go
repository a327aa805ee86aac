package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()

	var first, second []Status
	b.Subscribe(func(r Result) { first = append(first, r.Status) })
	b.Subscribe(func(r Result) { second = append(second, r.Status) })

	b.Publish(Result{Status: StatusSuccess})
	b.Publish(Result{Status: StatusOffline})

	assert.Equal(t, []Status{StatusSuccess, StatusOffline}, first)
	assert.Equal(t, []Status{StatusSuccess, StatusOffline}, second)
}

func TestBroadcaster_Cancel(t *testing.T) {
	b := NewBroadcaster()

	var calls int
	cancel := b.Subscribe(func(Result) { calls++ })

	b.Publish(Result{Status: StatusSuccess})
	cancel()
	b.Publish(Result{Status: StatusSuccess})

	assert.Equal(t, 1, calls)

	// A second cancel is a no-op.
	cancel()
}

func TestBroadcaster_PublishWithoutListeners(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Result{Status: StatusError})
}
