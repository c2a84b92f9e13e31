package session

// Conn is the outbound half of one client connection.
//
// The session owns its Conn exclusively. Implementations must serialize
// writes internally and return ErrClosed (possibly wrapped) once the
// underlying channel is gone, so a pipeline finishing after disconnect
// can turn its final emit into a no-op.
type Conn interface {
	// WriteBinary sends one complete binary message.
	WriteBinary(data []byte) error

	// WriteJSON sends one control message as a text frame.
	WriteJSON(v interface{}) error

	// Ping sends a low-level liveness probe.
	Ping() error

	// Close tears down the channel. Safe to call more than once.
	Close() error
}
