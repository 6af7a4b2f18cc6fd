package web

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenali/docmigrate/pkg/progress"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.subscribe()
	defer h.unsubscribe(sub)

	h.Emit(progress.BatchCompleted{Processed: 100, Total: 250, Percentage: 40})

	var payload struct {
		Type  progress.Kind `json:"type"`
		Event struct {
			Processed  int64   `json:"processed"`
			Total      int64   `json:"total"`
			Percentage float64 `json:"percentage"`
		} `json:"event"`
	}
	msg := <-sub.ch
	require.NoError(t, json.Unmarshal(msg, &payload))
	assert.Equal(t, progress.KindBatchCompleted, payload.Type)
	assert.Equal(t, int64(100), payload.Event.Processed)
	assert.Equal(t, float64(40), payload.Event.Percentage)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.subscribe()
	require.Equal(t, 1, h.subscriberCount())

	// Nobody reads sub.ch; fill its buffer, then overflow it.
	for i := 0; i < subscriberBuffer+1; i++ {
		h.Emit(progress.ErrorOccurred{Message: "x"})
	}

	assert.Equal(t, 0, h.subscriberCount())
	// The channel was closed when the subscriber was dropped.
	drained := 0
	for range sub.ch {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.subscribe()
	h.unsubscribe(sub)
	h.unsubscribe(sub)
	assert.Equal(t, 0, h.subscriberCount())

	// Emitting with no subscribers is a no-op.
	h.Emit(progress.UnmigratedItems{IDs: []string{"A"}})
}
