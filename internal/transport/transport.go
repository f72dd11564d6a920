// internal/transport/transport.go
package transport

import "errors"

var (
	// ErrUnreachable wraps every connect failure.
	ErrUnreachable = errors.New("transport: device unreachable")

	// ErrEmptyResponse is returned for reads that succeed with no words.
	ErrEmptyResponse = errors.New("transport: empty response")
)

// Conn is the request surface available inside a session.
// Any error means the device could not be reached; there is no fault taxonomy.
type Conn interface {
	ReadInput(start, count uint16) ([]uint16, error)
	ReadHolding(start, count uint16) ([]uint16, error)
	WriteHolding(addr, value uint16) error
}

// Transport is one physical connection to one device.
// Implementations are not safe for concurrent use; wrap them in a Guard.
type Transport interface {
	Conn
	Connect() error
	Disconnect() error
}

// Sessioner runs fn with exclusive use of a connected device.
type Sessioner interface {
	Session(fn func(Conn) error) error
}

func bytesToWords(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}
