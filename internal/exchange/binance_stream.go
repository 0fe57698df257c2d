package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minReconnectBackoff = time.Second
	maxReconnectBackoff = 16 * time.Second
)

type klineSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *klineSubscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// SubscribeKlines connects to the Binance kline stream for symbol and
// interval and hands every frame to onMessage. The connection is re-dialled
// with exponential backoff until the subscription is closed or ctx ends.
func (b *BinanceClient) SubscribeKlines(ctx context.Context, symbol, interval string, onMessage func([]byte)) (Subscription, error) {
	if onMessage == nil {
		return nil, fmt.Errorf("subscribe %s %s: nil message handler", symbol, interval)
	}
	wsURL := fmt.Sprintf("%s/ws/%s@kline_%s", b.streamURL, strings.ToLower(symbol), interval)

	ctx, cancel := context.WithCancel(ctx)
	sub := &klineSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		b.streamLoop(ctx, wsURL, onMessage)
	}()
	return sub, nil
}

func (b *BinanceClient) streamLoop(ctx context.Context, wsURL string, onMessage func([]byte)) {
	backoff := minReconnectBackoff
	for {
		if ctx.Err() != nil {
			b.logger.Info("BinanceClient: stream closed", "url", wsURL)
			return
		}

		b.logger.Info("BinanceClient: connecting to WebSocket", "url", wsURL, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			b.logger.Error("BinanceClient: WebSocket connection failed", "url", wsURL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxReconnectBackoff {
					backoff = maxReconnectBackoff
				}
			}
			continue
		}

		// Reset backoff on successful connection
		backoff = minReconnectBackoff
		b.logger.Info("BinanceClient: connected successfully", "url", wsURL)

		if err := b.readFrames(ctx, c, onMessage); err != nil && ctx.Err() == nil {
			b.logger.Error("BinanceClient: failed to read message", "url", wsURL, "error", err)
		}
	}
}

// readFrames blocks until the connection fails or ctx ends.
func (b *BinanceClient) readFrames(ctx context.Context, c *websocket.Conn, onMessage func([]byte)) error {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.Close()
		case <-closed:
			c.Close()
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}
		onMessage(message)
	}
}
