//go:build linux

package j1939

import (
	"errors"
	"fmt"
	"net"
	"os/exec"

	"golang.org/x/sys/unix"
)

// socketTransport opens an AF_CAN/SOCK_DGRAM/CAN_J1939 socket, binds it
// with a wildcard SockaddrCANJ1939 to let the kernel assign the source
// address, and reads frames with Recvfrom/writes with Sendto.
type socketTransport struct {
	fd     int
	ifidx  int
	ifname string
	addr   uint8
}

// OpenTransport brings up canInterface at the given bitrate (CAN-up), opens
// a J1939 socket bound to it, and returns the kernel-assigned source address.
func OpenTransport(canInterface string, bitrateBPS int) (Transport, error) {
	if err := canUp(canInterface, bitrateBPS); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_DGRAM, unix.CAN_J1939)
	if err != nil {
		return nil, fmt.Errorf("j1939: socket: %w", err)
	}

	iface, err := net.InterfaceByName(canInterface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("j1939: interface %q: %w", canInterface, err)
	}

	sa := &unix.SockaddrCANJ1939{Ifindex: iface.Index, Name: 0, PGN: 0, Addr: 0}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("j1939: bind: %w", err)
	}

	local, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("j1939: getsockname: %w", err)
	}
	localJ, ok := local.(*unix.SockaddrCANJ1939)
	if !ok {
		unix.Close(fd)
		return nil, fmt.Errorf("j1939: unexpected sockaddr type %T", local)
	}

	return &socketTransport{fd: fd, ifidx: iface.Index, ifname: canInterface, addr: localJ.Addr}, nil
}

// canUp brings the CAN interface down, reconfigures it as a CAN device at
// bitrateBPS with an 0.8 sample-point, and brings it back up.
func canUp(iface string, bitrateBPS int) error {
	if bitrateBPS <= 0 {
		bitrateBPS = 250000
	}
	_ = exec.Command("ip", "link", "set", iface, "down").Run()

	set := exec.Command("ip", "link", "set", iface, "type", "can",
		"bitrate", fmt.Sprintf("%d", bitrateBPS), "sample-point", "0.800")
	if out, err := set.CombinedOutput(); err != nil {
		return fmt.Errorf("j1939: configure %s: %w (%s)", iface, err, out)
	}

	up := exec.Command("ip", "link", "set", iface, "up")
	if out, err := up.CombinedOutput(); err != nil {
		return fmt.Errorf("j1939: bring up %s: %w (%s)", iface, err, out)
	}
	return nil
}

func (t *socketTransport) LocalAddress() uint8 { return t.addr }

func (t *socketTransport) Send(pgn uint32, destAddr uint8, data []byte) error {
	if len(data) > 8 {
		return fmt.Errorf("j1939: payload of %d bytes exceeds single-frame limit, TP not implemented", len(data))
	}
	dest := &unix.SockaddrCANJ1939{Ifindex: t.ifidx, Name: 0, PGN: pgn, Addr: destAddr}
	if err := unix.Sendto(t.fd, data, 0, dest); err != nil {
		return fmt.Errorf("j1939: sendto pgn=0x%X dest=0x%X: %w", pgn, destAddr, err)
	}
	return nil
}

func (t *socketTransport) Recv() (Frame, error) {
	buf := make([]byte, 2048)
	n, from, err := unix.Recvfrom(t.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EBADF) || errors.Is(err, net.ErrClosed) {
			return Frame{}, ErrClosed
		}
		return Frame{}, fmt.Errorf("j1939: recvfrom: %w", err)
	}
	sa, ok := from.(*unix.SockaddrCANJ1939)
	if !ok {
		return Frame{}, fmt.Errorf("j1939: unexpected source address type %T", from)
	}
	data := make([]byte, n)
	copy(data, buf[:n])
	return Frame{PGN: sa.PGN, SA: sa.Addr, Data: data}, nil
}

func (t *socketTransport) Close() error {
	return unix.Close(t.fd)
}
