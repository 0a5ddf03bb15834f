package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"pet-chat/contract"
	"pet-chat/domain/event"
	"pet-chat/errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.EventSink = (*Connection)(nil)

// Timing holds the websocket tuning parameters.
type Timing struct {
	WriteWait      time.Duration // time allowed to write a frame to the peer
	PongWait       time.Duration // time allowed to read the next pong from the peer
	PingInterval   time.Duration // must be shorter than PongWait
	MaxMessageSize int64
	SendBuffer     int // outbound frames queued per connection
}

func DefaultTiming() Timing {
	pongWait := 60 * time.Second
	return Timing{
		WriteWait:      10 * time.Second,
		PongWait:       pongWait,
		PingInterval:   pongWait * 9 / 10,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// Connection is one websocket client. It is the EventSink of the connection
// and owns a read pump feeding the dispatcher and a write pump draining egress.
type Connection struct {
	id     string
	userID string // subject of the verified token, empty when tokens are not required
	ws     *websocket.Conn
	egress chan []byte
	done   chan struct{}
	once   sync.Once
	timing Timing
	log    *slog.Logger
}

func NewConnection(id, userID string, ws *websocket.Conn, timing Timing, log *slog.Logger) *Connection {
	return &Connection{
		id:     id,
		userID: userID,
		ws:     ws,
		egress: make(chan []byte, timing.SendBuffer),
		done:   make(chan struct{}),
		timing: timing,
		log:    log.With("conn", id),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Consume queues the event without blocking. A slow client loses events
// rather than stalling the rooms it listens on.
func (c *Connection) Consume(_ context.Context, e event.Outbound) error {
	frame, err := json.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrSinkClosed
	default:
	}
	select {
	case c.egress <- frame:
		return nil
	case <-c.done:
		return errors.ErrSinkClosed
	default:
		return errors.ErrSinkFull
	}
}

// Close stops the write pump, which closes the socket and unblocks the read pump.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// ReadPump decodes client frames until the socket fails, then hands a Disconnect
// event to the dispatcher so it is applied after every event read before it.
func (c *Connection) ReadPump(ctx context.Context, dispatcher contract.IDispatcher) {
	defer func() {
		c.Close()
		dispatcher.Dispatch(ctx, event.Inbound{ConnectionID: c.id, Name: event.Disconnect})
	}()

	c.ws.SetReadLimit(c.timing.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.timing.PongWait))
	c.ws.SetPongHandler(func(string) error {
		dispatcher.Dispatch(ctx, event.Inbound{ConnectionID: c.id, Name: event.Heartbeat})
		return c.ws.SetReadDeadline(time.Now().Add(c.timing.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected close", "error", err)
			}
			return
		}
		in, err := event.Decode(c.id, frame)
		if err != nil {
			c.log.Debug("Event dropped", "error", err)
			continue
		}
		if !c.mayJoinAs(in) {
			c.log.Debug("Event dropped, join does not match the token subject")
			continue
		}
		dispatcher.Dispatch(ctx, in)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Connection) WritePump(ctx context.Context) {
	ticker := time.NewTicker(c.timing.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose(websocket.CloseGoingAway)
			return
		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure)
			return
		case frame := <-c.egress:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timing.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timing.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Connection) writeClose(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.timing.WriteWait))
}

func (c *Connection) mayJoinAs(in event.Inbound) bool {
	if c.userID == "" || in.Name != event.Join {
		return true
	}
	p, ok := in.Payload.(event.JoinPayload)
	return ok && p.UserID == c.userID
}
