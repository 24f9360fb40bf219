// Package events broadcasts resolved request/response exchanges to live
// viewers.
//
// DESIGN: Each identity has a channel named "request:<identity>". Viewers
// subscribe over WebSocket; the pipeline publishes one Exchange per resolved
// request. Delivery is fire-and-forget and at-most-once: a slow subscriber
// drops messages rather than blocking the pipeline, and emission order is
// preserved per identity because the pipeline emits synchronously.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/utils"
)

// ChannelPrefix prefixes per-identity event channel names.
const ChannelPrefix = "request:"

// Exchange is the payload emitted for one resolved request.
type Exchange struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Status          int               `json:"status"`
	RequestHeaders  map[string]string `json:"requestHeaders"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	RequestBody     any               `json:"requestBody"`
	ResponseBody    any               `json:"responseBody"`
	RequestTime     int64             `json:"requestTime"`  // epoch millis
	ResponseTime    int64             `json:"responseTime"` // epoch millis
	ResolutionTag   string            `json:"resolutionTag"`
}

// envelope is the wire frame sent to subscribers.
type envelope struct {
	Event string    `json:"event"`
	Data  *Exchange `json:"data"`
}

// Hub fans exchanges out to subscribed viewers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan []byte)}
}

// ChannelName returns the event channel for an identity.
func ChannelName(identity string) string {
	return ChannelPrefix + identity
}

// Emit publishes an exchange to every subscriber of the identity's channel.
// A missing identity is a defensive no-op; marshal failures are logged and
// swallowed — emission must never fail a request.
func (h *Hub) Emit(identity string, ex *Exchange) {
	if identity == "" || ex == nil {
		return
	}

	payload, err := utils.MarshalNoEscape(envelope{Event: ChannelName(identity), Data: ex})
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to marshal request event")
		return
	}

	// Send while holding the read lock: cancel closes channels under the
	// write lock, so a close can never race one of these sends.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[identity] {
		select {
		case ch <- payload:
		default:
			// Subscriber buffer full: drop rather than block the pipeline.
		}
	}
}

// Subscribe registers a viewer for an identity's channel. The returned cancel
// function must be called exactly once; it closes the channel.
func (h *Hub) Subscribe(identity string) (<-chan []byte, func()) {
	ch := make(chan []byte, 32)

	h.mu.Lock()
	h.subs[identity] = append(h.subs[identity], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		subs := h.subs[identity]
		for i, c := range subs {
			if c == ch {
				h.subs[identity] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subs[identity]) == 0 {
			delete(h.subs, identity)
		}
		// Close under the write lock so Emit, which sends under the read
		// lock, can never send on a closed channel.
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount reports active subscribers for an identity.
func (h *Hub) SubscriberCount(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[identity])
}
