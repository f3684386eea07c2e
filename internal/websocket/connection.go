package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla websocket connection behind a single writer
// goroutine, so concurrent broadcasts never race on the underlying socket.
// It carries no business state beyond its opaque id; who the connection
// belongs to is the binding registry's concern.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	writeWait time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket connection and starts its writer.
func NewConnection(conn *websocket.Conn, bufferSize int, writeWait time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:        uuid.New().String(),
		conn:      conn,
		writeCh:   make(chan []byte, bufferSize),
		writeWait: writeWait,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()
	return c
}

// ID returns the connection reference assigned at upgrade time.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) writeLoop() {
	// Cancel on exit so queued writers fail fast instead of waiting out
	// their timeout. The channel is never closed; senders always race
	// against ctx, not against a close.
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON message for the writer goroutine.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
