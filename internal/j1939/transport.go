package j1939

import "fmt"

// PGNAddressClaimed is the PGN used to broadcast this node's NAME during the
// address-claim handshake.
const PGNAddressClaimed uint32 = 0x00EE00

// Frame is one received J1939 frame: PGN, source address, and payload.
type Frame struct {
	PGN  uint32
	SA   uint8
	Data []byte
}

// Transport is the raw CAN J1939 socket, abstracted so the protocol logic in
// Listener (state machine, discovery, scheduling, decode/publish) never
// touches socket syscalls directly. The concrete implementation is
// platform-specific (see transport_linux.go).
type Transport interface {
	// LocalAddress returns the source address assigned to this node,
	// once the kernel has completed dynamic address assignment.
	LocalAddress() uint8
	// Send transmits data (<=8 bytes; no transport-protocol segmentation)
	// addressed to pgn/destAddr.
	Send(pgn uint32, destAddr uint8, data []byte) error
	// Recv blocks until a frame arrives or the transport is closed, in
	// which case it returns ErrClosed.
	Recv() (Frame, error)
	Close() error
}

// errUnsupportedPlatform is returned by OpenTransport on platforms without a
// SocketCAN J1939 stack.
var errUnsupportedPlatform = fmt.Errorf("j1939: raw CAN J1939 sockets are only supported on linux")

func encodeUint64LE(v uint64) [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
