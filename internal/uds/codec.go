package uds

import "fmt"

// Engine block, fuel-rate, and fuel-level DIDs polled every tick.
const (
	DIDEngineBlock uint16 = 0x0102
	DIDFuelRate    uint16 = 0x013F
	DIDFuelLevel   uint16 = 0x0173
)

// DID payload lengths, used to validate a response before decoding.
const (
	lenEngineBlock = 40
	lenFuelRate    = 2
	lenFuelLevel   = 20
)

// Codec decodes one DID's raw payload into named fields. Every field name a
// codec can produce ends up a candidate for the merged per-tick CSV row and,
// if allow-listed, a bus publish.
type Codec func(payload []byte) (map[string]float64, error)

// Registry maps each DID this listener polls to its codec. Unknown DIDs are
// rejected.
var Registry = map[uint16]Codec{
	DIDEngineBlock: decodeEngineBlock,
	DIDFuelRate:    decodeFuelRate,
	DIDFuelLevel:   decodeFuelLevel,
}

// beU16 reads a big-endian uint16 at offset i.
func beU16(payload []byte, i int) uint16 {
	return uint16(payload[i])<<8 | uint16(payload[i+1])
}

// decodeEngineBlock implements the 0x0102 codec: rpm = u16@21/8,
// torque_percent = byte38-125, speed (km/h) = u16@23*0.00390625.
func decodeEngineBlock(payload []byte) (map[string]float64, error) {
	if len(payload) < lenEngineBlock {
		return nil, fmt.Errorf("uds: DID 0x%04X payload too short: %d bytes", DIDEngineBlock, len(payload))
	}
	return map[string]float64{
		"rpm":            float64(beU16(payload, 21)) / 8,
		"torque_percent": float64(payload[38]) - 125,
		"speed":          float64(beU16(payload, 23)) * 0.00390625,
	}, nil
}

// decodeFuelRate implements the 0x013F codec: fuel_rate = u16@0*0.05.
func decodeFuelRate(payload []byte) (map[string]float64, error) {
	if len(payload) < lenFuelRate {
		return nil, fmt.Errorf("uds: DID 0x%04X payload too short: %d bytes", DIDFuelRate, len(payload))
	}
	return map[string]float64{
		"fuel_rate": float64(beU16(payload, 0)) * 0.05,
	}, nil
}

// decodeFuelLevel implements the 0x0173 codec: fuel_level = byte11*0.4.
func decodeFuelLevel(payload []byte) (map[string]float64, error) {
	if len(payload) < lenFuelLevel {
		return nil, fmt.Errorf("uds: DID 0x%04X payload too short: %d bytes", DIDFuelLevel, len(payload))
	}
	return map[string]float64{
		"fuel_level": float64(payload[11]) * 0.4,
	}, nil
}
