package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WS streams ticker prices for the live executor's price-update cycle.
type WS struct{ url string }

func NewWS(u string) WS { return WS{u} }

// Stream subscribes to ticker channels for the given symbols and pushes
// PriceTicks until the context is cancelled, reconnecting with exponential
// backoff on failure.
func (w WS) Stream(ctx context.Context, symbols []string, ticks chan<- PriceTick, errs chan<- error, ping time.Duration) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.streamOnce(ctx, symbols, ticks, ping); err != nil {
				log.Warn().Err(err).Dur("backoff", backoff).Msg("price stream failed, reconnecting")
				select {
				case errs <- fmt.Errorf("ws reconnect: %w", err):
				default:
				}

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (w WS) streamOnce(ctx context.Context, symbols []string, ticks chan<- PriceTick, ping time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var args []map[string]string
	for _, s := range symbols {
		args = append(args, map[string]string{"symbol": s, "ch": "ticker"})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		default:
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read message failed: %w", err)
			}

			tick, ok, err := parseTick(msg)
			if err != nil {
				log.Debug().Err(err).Msg("failed to parse ticker message")
				continue
			}
			if !ok {
				continue
			}

			select {
			case ticks <- tick:
			default:
				log.Warn().Str("symbol", tick.Symbol).Msg("tick channel full, dropping message")
			}
		}
	}
}

func parseTick(msg []byte) (PriceTick, bool, error) {
	var raw struct {
		Ch     string `json:"ch"`
		Symbol string `json:"symbol"`
		Data   struct {
			Price string `json:"p"`
			Ts    int64  `json:"ts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return PriceTick{}, false, err
	}
	if raw.Ch != "ticker" {
		return PriceTick{}, false, nil // subscription acks and heartbeats
	}

	price, err := strconv.ParseFloat(raw.Data.Price, 64)
	if err != nil {
		return PriceTick{}, false, fmt.Errorf("invalid price %q: %w", raw.Data.Price, err)
	}
	if price <= 0 {
		return PriceTick{}, false, fmt.Errorf("invalid price value: %f", price)
	}

	ts := time.Now()
	if raw.Data.Ts > 0 {
		ts = time.UnixMilli(raw.Data.Ts)
	}
	return PriceTick{Symbol: raw.Symbol, Price: price, Ts: ts}, true, nil
}
