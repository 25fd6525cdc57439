package realtime

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// client pumps one subscription onto one WebSocket connection.
type client struct {
	conn *ws.Conn
	sub  *Subscription
}

// run blocks until the connection closes, then cancels the subscription.
func (c *client) run(ctx context.Context) {
	defer c.sub.Cancel()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.readPump(ctx)
		cancel()
	}()
	c.writePump(ctx)
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the subscription and writes events to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				return
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
