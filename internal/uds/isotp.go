// Package uds implements the UDS (ISO 14229) listener: ISO-TP transport
// (ISO 15765-2) over a single CAN arbitration pair, tester-present
// keep-alive, Read-Data-By-Identifier polling, and the per-DID codecs.
// The transport uses CAN_RAW/SOCK_RAW; ISO-TP framing is done here since
// there is no SocketCAN kernel assist for it.
package uds

import "fmt"

// TxID and RxID are the 29-bit CAN identifiers used for Normal addressing
// ISO-TP: the tester (this gateway) sends on TxID and expects responses on
// RxID.
const (
	TxID uint32 = 0x18DA00F1
	RxID uint32 = 0x18DAF100
)

const (
	pciTypeSingleFrame      = 0x0
	pciTypeFirstFrame       = 0x1
	pciTypeConsecutiveFrame = 0x2
	pciTypeFlowControl      = 0x3
)

const (
	flowStatusContinueToSend = 0x0
	flowStatusWait           = 0x1
	flowStatusOverflow       = 0x2
)

// maxSingleFrame is the largest payload a single ISO-TP frame can carry in
// classic (8-byte) CAN frames: 7 data bytes, 1 PCI byte.
const maxSingleFrame = 7

// encodeSingleFrame builds the 8-byte CAN payload for an ISO-TP Single
// Frame carrying payload (<=7 bytes).
func encodeSingleFrame(payload []byte) ([8]byte, error) {
	var frame [8]byte
	if len(payload) > maxSingleFrame {
		return frame, fmt.Errorf("uds: payload of %d bytes exceeds single-frame limit of %d", len(payload), maxSingleFrame)
	}
	frame[0] = byte(len(payload))
	copy(frame[1:], payload)
	return frame, nil
}

// encodeFlowControl builds a Flow Control frame granting the sender
// permission to send its whole multi-frame message with no further pacing
// (block size 0, STmin 0).
func encodeFlowControl() [8]byte {
	var frame [8]byte
	frame[0] = pciTypeFlowControl<<4 | flowStatusContinueToSend
	frame[1] = 0 // block size: unlimited
	frame[2] = 0 // STmin: no minimum separation
	return frame
}

// isotpAssembler reconstructs a multi-frame ISO-TP message from First Frame
// + Consecutive Frame payloads. It holds no I/O; callers feed it raw CAN
// frame bytes and it reports when the message is complete.
type isotpAssembler struct {
	total   int
	buf     []byte
	nextSeq uint8
	started bool
}

// feed processes one raw 8-byte CAN payload. done is true once the full
// message has been assembled (single-frame messages complete immediately).
func (a *isotpAssembler) feed(data []byte) (msg []byte, done bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("uds: empty CAN payload")
	}
	pciType := data[0] >> 4

	switch pciType {
	case pciTypeSingleFrame:
		n := int(data[0] & 0x0F)
		if n == 0 || len(data) < 1+n {
			return nil, false, fmt.Errorf("uds: malformed single frame (len=%d)", n)
		}
		return append([]byte(nil), data[1:1+n]...), true, nil

	case pciTypeFirstFrame:
		if len(data) < 8 {
			return nil, false, fmt.Errorf("uds: malformed first frame")
		}
		total := int(data[0]&0x0F)<<8 | int(data[1])
		a.total = total
		a.buf = append([]byte(nil), data[2:8]...)
		a.nextSeq = 1
		a.started = true
		if len(a.buf) >= a.total {
			return a.buf[:a.total], true, nil
		}
		return nil, false, nil

	case pciTypeConsecutiveFrame:
		if !a.started {
			return nil, false, fmt.Errorf("uds: consecutive frame with no first frame")
		}
		seq := data[0] & 0x0F
		if seq != a.nextSeq&0x0F {
			return nil, false, fmt.Errorf("uds: consecutive frame sequence mismatch, want %d got %d", a.nextSeq&0x0F, seq)
		}
		remaining := a.total - len(a.buf)
		chunk := data[1:]
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		a.buf = append(a.buf, chunk...)
		a.nextSeq++
		if len(a.buf) >= a.total {
			return a.buf[:a.total], true, nil
		}
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("uds: unexpected PCI type 0x%X", pciType)
	}
}
