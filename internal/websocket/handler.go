package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"coderoom/pkg/interfaces"
	"coderoom/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The reference deployment fronts this with a proxy; origin policy
		// belongs there.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives decoded socket frames. Implemented by the hub; the
// handler stays free of coordination logic.
type EventSink interface {
	Dispatch(conn interfaces.Connection, env *types.Envelope) error
	DispatchDisconnect(conn interfaces.Connection)
}

// Options tunes the per-connection transport behavior.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// Handler upgrades HTTP requests to websocket connections and pumps inbound
// frames into the event sink. Membership is decided by the coordinator on the
// join event, not at upgrade time, so the upgrade itself is unconditional.
type Handler struct {
	sink EventSink
	opts Options
}

func NewHandler(sink EventSink, opts Options) *Handler {
	return &Handler{sink: sink, opts: opts}
}

// HandleWebSocket is the /ws endpoint.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.opts.BufferSize, h.opts.WriteTimeout)
	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection. On
// exit the connection-loss event is handed to the sink, which resolves the
// binding and updates presence.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.DispatchDisconnect(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Dropping unparseable frame from %s: %v", conn.ID(), err)
			continue
		}
		if err := h.sink.Dispatch(conn, &env); err != nil {
			log.Printf("Dropping event %q from %s: %v", env.Type, conn.ID(), err)
		}
	}
}
