package atmt

import "time"

// Packet is the opaque payload the core dispatches on. Packet dissection is
// out of scope for this module; users supply their own concrete types.
type Packet interface {
	// Summary returns a short human-readable description for debug logs.
	Summary() string
	// Copy returns a structural copy suitable for retention in the
	// session log after the original is reused or released.
	Copy() Packet
}

// Timestamped is implemented by packet types that record their arrival
// time. The dispatch loop calls SetTime when it is available.
type Timestamped interface {
	SetTime(time.Time)
}

// ListenSocket is the receiving half of the external collaborator pair.
// Recv returning (nil, nil) means "not for us, skip"; errors propagate
// and abort the current Step.
type ListenSocket interface {
	Recv(maxBytes int) (Packet, error)
	Descriptor() int
	Close() error
}

// SendSocket is the transmitting half of the external collaborator pair.
type SendSocket interface {
	Send(Packet) error
}

// MasterFilter decides whether a received packet is considered for receive
// conditions at all. The default filter accepts everything.
type MasterFilter func(Packet) bool

func acceptAll(Packet) bool { return true }
