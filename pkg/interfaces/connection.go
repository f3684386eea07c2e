package interfaces

// Connection is the transport-side handle the coordination core writes to.
// The concrete implementation lives in internal/websocket; tests substitute
// in-memory fakes.
type Connection interface {
	// ID returns the connection's unique reference, assigned at upgrade time.
	ID() string
	// WriteJSON queues a JSON-encoded message for delivery.
	WriteJSON(v any) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// ConnectionResolver resolves the live connection bound to a (room, user)
// pair. At most one live connection exists per pair.
type ConnectionResolver interface {
	Get(roomID, userID string) (Connection, bool)
}
