package events

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
)

// WSHandler upgrades viewer connections and streams their identity's events.
// The identity comes from the imockId query parameter or the usual header.
func (h *Hub) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := r.URL.Query().Get("imockId")
		if identity == "" {
			identity = r.Header.Get(config.HeaderMockID)
		}
		if identity == "" {
			http.Error(w, "missing imockId", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The admin UI is served from a different origin than the proxy.
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Debug().Err(err).Msg("websocket accept failed")
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

		ch, cancel := h.Subscribe(identity)
		defer cancel()

		log.Info().Str("identity", identity).Msg("viewer connected")

		ctx := r.Context()

		// Drain client frames so pings are answered and closes are noticed.
		go func() {
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					log.Debug().Err(err).Str("identity", identity).Msg("viewer write failed")
					return
				}
			}
		}
	}
}
