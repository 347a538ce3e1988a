package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

// MaxStreamsPerConnection bounds the streams requested on one combined
// stream connection.
const MaxStreamsPerConnection = 200

// bookTicker is the payload of a <symbol>@bookTicker stream.
type bookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   bookTicker `json:"data"`
}

// ParseBookTicker decodes a combined-stream bookTicker message.
func ParseBookTicker(raw []byte, now time.Time) (domain.PriceUpdate, error) {
	var env streamEnvelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("binance/stream: decode: %w", err)
	}
	t := env.Data
	if t.Symbol == "" {
		return domain.PriceUpdate{}, fmt.Errorf("binance/stream: message without symbol on %q", env.Stream)
	}
	return domain.PriceUpdate{
		Symbol: t.Symbol,
		Book: domain.PriceBook{
			Bid:       parseDecimal(t.Bid),
			BidQty:    parseDecimal(t.BidQty),
			Ask:       parseDecimal(t.Ask),
			AskQty:    parseDecimal(t.AskQty),
			UpdatedAt: now,
		},
	}, nil
}

// StreamURL builds the combined-stream URL for the given stream names.
func StreamURL(base string, streams []string) string {
	if base == "" {
		base = DefaultStreamURL
	}
	return base + "?streams=" + strings.Join(streams, "/")
}

// StreamConn is one combined-stream connection.
type StreamConn struct {
	conn *websocket.Conn
}

// DialStream opens a combined-stream connection for streams.
func DialStream(ctx context.Context, base string, streams []string) (*StreamConn, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("binance/stream: no streams requested")
	}
	if len(streams) > MaxStreamsPerConnection {
		return nil, fmt.Errorf("binance/stream: %d streams exceeds %d per connection", len(streams), MaxStreamsPerConnection)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, StreamURL(base, streams), nil)
	if err != nil {
		return nil, fmt.Errorf("binance/stream: connect: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return &StreamConn{conn: conn}, nil
}

// ReadLoop decodes messages and hands each price update to handle until
// the connection fails or ctx is cancelled. Undecodable messages are passed
// to onBad and skipped.
func (s *StreamConn) ReadLoop(ctx context.Context, handle func(domain.PriceUpdate), onBad func(error)) error {
	conn := s.conn
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		upd, err := ParseBookTicker(message, time.Now())
		if err != nil {
			if onBad != nil {
				onBad(err)
			}
			continue
		}
		handle(upd)
	}
}

// Close closes the connection.
func (s *StreamConn) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return s.conn.Close()
}
