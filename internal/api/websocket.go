package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/stream"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	maxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// wsRequest is a client control message.
type wsRequest struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// wsReply answers a control message that could not be applied.
type wsReply struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error"`
}

// outbound is work for writePump besides published events.
type outbound struct {
	snapshot *domain.StatusEvent
	raw      []byte
	forget   string // order id unsubscribed by the client
}

// client is one live-update connection.
type client struct {
	server  *Server
	conn    *websocket.Conn
	sub     *stream.Subscriber
	replies chan outbound
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		server:  s,
		conn:    conn,
		sub:     stream.NewSubscriber(s.opts.SubscriberBuffer),
		replies: make(chan outbound, 16),
	}
	s.metrics.IncrementConnections()
	slog.Info("Client connected", slog.String("subscriber", c.sub.ID()), slog.String("remote", conn.RemoteAddr().String()))

	go c.writePump()
	go c.readPump()
}

// readPump handles subscribe/unsubscribe messages until the connection closes.
func (c *client) readPump() {
	defer func() {
		c.server.registry.Disconnect(c.sub)
		c.conn.Close()
		c.server.metrics.DecrementConnections()
		slog.Info("Client disconnected", slog.String("subscriber", c.sub.ID()))
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", slog.Any("error", err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(wsReply{Type: "error", Error: "invalid message"})
			continue
		}

		switch req.Type {
		case "subscribe":
			c.subscribe(req.OrderID)
		case "unsubscribe":
			if req.OrderID != "" {
				c.server.registry.Unsubscribe(c.sub, req.OrderID)
				c.send(outbound{forget: req.OrderID})
			}
		default:
			c.reply(wsReply{Type: "error", OrderID: req.OrderID, Error: "unknown message type"})
		}
	}
}

func (c *client) subscribe(orderID string) {
	if orderID == "" {
		c.reply(wsReply{Type: "error", Error: "orderId required"})
		return
	}
	if err := c.server.registry.Subscribe(c.sub, orderID); err != nil {
		return
	}

	// Events published before this point are not replayed; send the stored state instead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	order, err := c.server.orders.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			slog.Warn("Snapshot lookup failed", slog.String("order_id", orderID), slog.Any("error", err))
		}
		return
	}
	snap := order.Snapshot()
	c.send(outbound{snapshot: &snap})
}

func (c *client) reply(r wsReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.send(outbound{raw: data})
}

func (c *client) send(out outbound) {
	select {
	case c.replies <- out:
	case <-c.sub.Done():
	}
}

// writePump is the only writer on the connection.
// Per order it never sends a status the client has already seen or passed, so a
// snapshot racing with a live event cannot make the order appear to go backwards.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	sent := make(map[string]domain.OrderStatus)

	for {
		select {
		case ev := <-c.sub.Events():
			if err := c.writeEvent(sent, ev); err != nil {
				return
			}

		case out := <-c.replies:
			var err error
			switch {
			case out.forget != "":
				delete(sent, out.forget)
			case out.snapshot != nil:
				err = c.writeEvent(sent, *out.snapshot)
			default:
				err = c.write(websocket.TextMessage, out.raw)
			}
			if err != nil {
				return
			}

		case <-c.sub.Done():
			code, text := websocket.CloseNormalClosure, ""
			if errors.Is(c.sub.Err(), stream.ErrSlowSubscriber) {
				code, text = websocket.CloseTryAgainLater, "slow consumer"
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeEvent(sent map[string]domain.OrderStatus, ev domain.StatusEvent) error {
	if prev, ok := sent[ev.OrderID]; ok && (prev.IsTerminal() || prev.Reached(ev.Status)) {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode status event", slog.Any("error", err))
		return nil
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return err
	}
	sent[ev.OrderID] = ev.Status
	return nil
}

func (c *client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
