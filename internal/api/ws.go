package api

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradebot/internal/bot"
	"tradebot/internal/stream"
)

const writeWait = 10 * time.Second

// Server-sent events that are not hub topics.
const (
	eventSubscribed = "subscribed"
	eventError      = "error"
)

type inboundMessage struct {
	Action   string `json:"action"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type outboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Stream handles GET /ws. Every connection receives trade events; a
// subscribe frame adds the live bars of one symbol.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(h.wsBuffer, bot.TopicTrades)
	defer h.hub.Unsubscribe(sub)

	replies := make(chan outboundMessage, 8)
	go func() {
		h.readClientFrames(conn, sub, replies)
		h.hub.Unsubscribe(sub)
	}()

	for {
		var msg outboundMessage
		select {
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			msg = outboundMessage{Event: m.Topic, Data: m.Payload}
		case msg = <-replies:
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readClientFrames handles client requests until the connection fails.
func (h *Handler) readClientFrames(conn *websocket.Conn, sub *stream.Subscription, replies chan<- outboundMessage) {
	reply := func(msg outboundMessage) {
		select {
		case replies <- msg:
		default:
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				h.logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			reply(outboundMessage{Event: eventError, Data: map[string]string{"error": "malformed frame"}})
			continue
		}

		switch strings.ToLower(in.Action) {
		case "subscribe":
			if err := h.relay.Subscribe(in.Symbol, in.Interval); err != nil {
				h.logger.Warn("WebSocket subscribe failed", "symbol", in.Symbol, "interval", in.Interval, "error", err)
				reply(outboundMessage{Event: eventError, Data: map[string]string{"error": err.Error()}})
				continue
			}
			symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
			h.hub.Join(sub, symbol)
			reply(outboundMessage{Event: eventSubscribed, Data: stream.Key{Symbol: symbol, Interval: strings.TrimSpace(in.Interval)}})
		default:
			reply(outboundMessage{Event: eventError, Data: map[string]string{"error": "unknown action " + in.Action}})
		}
	}
}
