package uds

import (
	"fmt"
	"time"
)

const (
	serviceTesterPresent        byte = 0x3E
	serviceReadDataByIdentifier byte = 0x22
	positiveResponseOffset      byte = 0x40
	negativeResponse            byte = 0x7F
)

// readTimeout bounds how long a single request waits for its response
// before being treated as a transient I/O failure.
const readTimeout = 500 * time.Millisecond

// Session is one ISO-TP/UDS conversation with the engine ECU: TxID/RxID are
// fixed; no diagnostic session change is performed on open, the default
// session is sufficient for the DIDs polled here.
type Session struct {
	c *conn
}

// Open dials the CAN_RAW transport for canInterface.
func Open(canInterface string) (*Session, error) {
	c, err := dial(canInterface)
	if err != nil {
		return nil, err
	}
	if err := c.setReadTimeout(readTimeout); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("uds: set read timeout: %w", err)
	}
	return &Session{c: c}, nil
}

func (s *Session) Close() error {
	return s.c.close()
}

// request sends payload as a (necessarily single-frame) ISO-TP message and
// returns the ECU's full reassembled response.
func (s *Session) request(payload []byte) ([]byte, error) {
	frame, err := encodeSingleFrame(payload)
	if err != nil {
		return nil, err
	}
	if err := s.c.sendFrame(TxID, frame); err != nil {
		return nil, err
	}

	var asm isotpAssembler
	for {
		data, err := s.c.recvFrame(RxID)
		if err != nil {
			return nil, err
		}
		if data[0]>>4 == pciTypeFirstFrame {
			if err := s.c.sendFrame(TxID, encodeFlowControl()); err != nil {
				return nil, fmt.Errorf("uds: send flow control: %w", err)
			}
		}
		msg, done, err := asm.feed(data[:])
		if err != nil {
			return nil, err
		}
		if done {
			return msg, nil
		}
	}
}

// TesterPresent sends the keep-alive the ECU needs to keep answering
// non-default-session requests promptly.
func (s *Session) TesterPresent() error {
	resp, err := s.request([]byte{serviceTesterPresent, 0x00})
	if err != nil {
		return fmt.Errorf("uds: tester present: %w", err)
	}
	if len(resp) > 0 && resp[0] == negativeResponse {
		return fmt.Errorf("uds: tester present negative response: %X", resp)
	}
	return nil
}

// ReadDataByIdentifier issues a 0x22 request for did and returns the raw
// data-record bytes from a positive response.
func (s *Session) ReadDataByIdentifier(did uint16) ([]byte, error) {
	req := []byte{serviceReadDataByIdentifier, byte(did >> 8), byte(did)}
	resp, err := s.request(req)
	if err != nil {
		return nil, fmt.Errorf("uds: read DID 0x%04X: %w", did, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("uds: read DID 0x%04X: empty response", did)
	}
	if resp[0] == negativeResponse {
		nrc := byte(0)
		if len(resp) > 2 {
			nrc = resp[2]
		}
		return nil, fmt.Errorf("uds: read DID 0x%04X: negative response, NRC=0x%02X", did, nrc)
	}
	if resp[0] != serviceReadDataByIdentifier+positiveResponseOffset {
		return nil, fmt.Errorf("uds: read DID 0x%04X: unexpected response service 0x%02X", did, resp[0])
	}
	if len(resp) < 3 {
		return nil, fmt.Errorf("uds: read DID 0x%04X: response too short", did)
	}
	return resp[3:], nil
}
