package web

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mbenali/docmigrate/pkg/progress"
)

const subscriberBuffer = 64

// Hub fans migration events out to websocket subscribers. It implements
// progress.Reporter; a subscriber that cannot keep up is dropped rather
// than blocking the run.
type Hub struct {
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch chan []byte
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Emit serializes the event and hands it to every subscriber without
// blocking. Encoding failures are logged and swallowed; the run never
// notices.
func (h *Hub) Emit(ev progress.Event) {
	msg, err := encode(ev)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("encoding progress event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			h.log.Warn().Msg("dropping slow progress subscriber")
			delete(h.subs, s)
			close(s.ch)
		}
	}
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// unsubscribe detaches s. The channel is not closed here: Emit may already
// have closed it when dropping the subscriber.
func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// encode wraps the event with its kind so the browser can dispatch on it.
func encode(ev progress.Event) ([]byte, error) {
	return json.Marshal(struct {
		Type  progress.Kind  `json:"type"`
		Event progress.Event `json:"event"`
	}{ev.Kind(), ev})
}
