package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterKeepsArrivalOrder(t *testing.T) {
	e := NewEventEmitter()
	e.Emit("log_agent", "analysis_started", "starting")
	e.Emit("log_agent", "analysis_complete", "done")
	e.EmitDetails("supervisor", "phase_change", "LOGS_ANALYZED", map[string]any{"phase": "LOGS_ANALYZED"})

	events := e.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "analysis_started", events[0].EventType)
	assert.Equal(t, "analysis_complete", events[1].EventType)
	assert.Equal(t, "LOGS_ANALYZED", events[2].Details["phase"])
	assert.False(t, events[0].Timestamp.After(events[2].Timestamp))
}

func TestEmitterFansOutToSubscribers(t *testing.T) {
	e := NewEventEmitter()
	ch, cancel := e.Subscribe()
	defer cancel()

	e.Emit("critic", "review_complete", "2 pins reviewed")

	got := <-ch
	assert.Equal(t, "critic", got.AgentName)
	assert.Equal(t, "review_complete", got.EventType)
}

func TestEmitterDropsForLaggingSubscriber(t *testing.T) {
	e := NewEventEmitter()
	ch, cancel := e.Subscribe()
	defer cancel()

	// Nobody drains the channel; emits past the buffer must not block.
	for i := 0; i < eventBuffer+10; i++ {
		e.Emit("agent", "tick", fmt.Sprintf("event %d", i))
	}

	assert.Len(t, e.Events(), eventBuffer+10)
	assert.Len(t, ch, eventBuffer)
}

func TestEmitterUnsubscribeClosesChannel(t *testing.T) {
	e := NewEventEmitter()
	ch, cancel := e.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Emitting after unsubscribe reaches the log only.
	e.Emit("agent", "tick", "still logged")
	assert.Len(t, e.Events(), 1)
}

func TestEmitterClose(t *testing.T) {
	e := NewEventEmitter()
	e.Emit("agent", "tick", "before close")
	ch, cancel := e.Subscribe()
	defer cancel()

	e.Close()

	_, open := <-ch
	assert.False(t, open)

	e.Emit("agent", "tick", "after close")
	assert.Len(t, e.Events(), 1)

	// Subscribing after close yields a closed channel.
	late, lateCancel := e.Subscribe()
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}
