package core

import "github.com/dkmln/parley/internal/domain"

// Frame is a marshaled event payload as sent on the wire.
type Frame []byte

// ConnID identifies a single live connection. One user may own many.
type ConnID string

// EventConn abstracts the per-connection messaging transport.
// Owned by the adapter; the adapter must Close() it.
type EventConn interface {
	TrySend(Frame) error
	Close()
}

// DeliveryResult reports fan-out delivery stats and backpressure drops.
// A dropped connection never blocks or fails delivery to the others.
type DeliveryResult struct {
	Sent    int
	Dropped []ConnID
}

// ConnRef pairs a connection with its owning user for fan-out targeting.
type ConnRef struct {
	ID     ConnID
	UserID domain.UserID
	Conn   EventConn
}
