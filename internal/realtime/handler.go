package realtime

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/errand/internal/auth"
)

// HandleWebSocket upgrades authenticated requests to WebSocket and streams
// the caller's events until the connection closes.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		c := &client{conn: conn, sub: hub.Subscribe(userID)}
		c.run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
