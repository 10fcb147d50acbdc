package j1939

// PGNRequest is 0x00EA00, the Request PGN used both for discovery (global
// destination) and the per-interval re-request of a known PGN.
const PGNRequest uint32 = 0x00EA00

// AddressGlobal is the destination address meaning "all nodes".
const AddressGlobal uint8 = 0x00

// RequestPriority is the CAN priority used for Request PGN frames.
const RequestPriority uint8 = 6

// BuildRequestPayload builds the 8-byte payload of a Request PGN frame
// asking for targetPGN: three PGN bytes little-endian, padded with five
// 0x00 bytes.
func BuildRequestPayload(targetPGN uint32) [8]byte {
	var payload [8]byte
	payload[0] = byte(targetPGN)
	payload[1] = byte(targetPGN >> 8)
	payload[2] = byte(targetPGN >> 16)
	// payload[3:8] remain zero pad bytes.
	return payload
}
