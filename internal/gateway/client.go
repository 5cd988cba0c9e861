package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single websocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// subs holds the stream keys this client is attached to.
	subMu sync.Mutex
	subs  map[string]struct{}
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// trySend queues msg without blocking; slow clients lose messages. Callers
// hold hub.mu, so send is never closed concurrently.
func (c *Client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
		if c.hub.metrics != nil {
			c.hub.metrics.WSDropsTotal.Inc()
		}
	}
}

func (c *Client) addSub(key string) {
	c.subMu.Lock()
	c.subs[key] = struct{}{}
	c.subMu.Unlock()
}

func (c *Client) removeSub(key string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, ok := c.subs[key]; !ok {
		return false
	}
	delete(c.subs, key)
	return true
}

func (c *Client) takeSubs() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	keys := make([]string, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	c.subs = make(map[string]struct{})
	return keys
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[gateway] ws read failed", "client", c.id, "error", err)
			}
			return
		}

		var req ClientMessage
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(req, errors.Wrap(err, "invalid message"))
			continue
		}

		switch req.Action {
		case ActionSubscribe:
			err = c.hub.subscribe(c, req)
		case ActionUnsubscribe:
			err = c.hub.unsubscribe(c, req)
		default:
			err = errors.Errorf("unknown action %q", req.Action)
		}
		if err != nil {
			c.reply(req, err)
		}
	}
}

// reply sends an error message unless the client is already gone.
func (c *Client) reply(req ClientMessage, err error) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; ok {
		c.trySend(errorMessage(req, err))
	}
}
