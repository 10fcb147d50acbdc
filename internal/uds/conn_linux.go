//go:build linux

package uds

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// conn is a CAN_RAW socket carrying one ISO-TP session between TxID and
// RxID. Classic (8-byte) CAN frames only; no CAN-FD.
type conn struct {
	fd int
}

// dial opens a CAN_RAW socket on canInterface, ready to exchange ISO-TP
// frames with the fixed TxID/RxID pair.
func dial(canInterface string) (*conn, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("uds: socket: %w", err)
	}
	iface, err := net.InterfaceByName(canInterface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uds: interface %q: %w", canInterface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("uds: bind: %w", err)
	}
	return &conn{fd: fd}, nil
}

// setReadTimeout bounds how long recvFrame blocks waiting for the next
// matching CAN frame.
func (c *conn) setReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// sendFrame writes an 8-byte classic CAN frame addressed to id.
func (c *conn) sendFrame(id uint32, data [8]byte) error {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], id|unix.CAN_EFF_FLAG)
	buf[4] = 8 // DLC
	copy(buf[8:16], data[:])
	_, err := unix.Write(c.fd, buf)
	if err != nil {
		return fmt.Errorf("uds: write frame: %w", err)
	}
	return nil
}

// recvFrame blocks (bounded by setReadTimeout) for the next CAN frame
// matching wantID, discarding frames addressed to other IDs.
func (c *conn) recvFrame(wantID uint32) ([8]byte, error) {
	buf := make([]byte, 16)
	var out [8]byte
	for {
		n, err := unix.Read(c.fd, buf)
		if err != nil {
			if errno, ok := err.(unix.Errno); ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK) {
				return out, fmt.Errorf("uds: read timeout: %w", err)
			}
			return out, fmt.Errorf("uds: read frame: %w", err)
		}
		if n < 16 {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[0:4]) & unix.CAN_EFF_MASK
		if id != wantID {
			continue
		}
		copy(out[:], buf[8:16])
		return out, nil
	}
}

func (c *conn) close() error {
	return unix.Close(c.fd)
}
