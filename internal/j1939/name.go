package j1939

// Name is the 64-bit J1939 NAME used in the address-claim handshake: a stable identity built from industry group, function, manufacturer
// code, and identity number, per SAE J1939-81.
type Name struct {
	IdentityNumber    uint32 // 21 bits
	ManufacturerCode  uint16 // 11 bits
	ECUInstance       uint8  // 3 bits
	FunctionInstance  uint8  // 5 bits
	Function          uint8  // 8 bits
	VehicleSystem     uint8  // 7 bits
	VehicleSystemInst uint8  // 4 bits
	IndustryGroup     uint8  // 3 bits
	ArbitraryAddress  bool   // 1 bit
}

// Encode packs the NAME fields into the 64-bit wire representation used in
// the Address Claimed (PGN 0x00EE00) message payload.
func (n Name) Encode() uint64 {
	var v uint64
	v |= uint64(n.IdentityNumber&0x1FFFFF) << 0
	v |= uint64(n.ManufacturerCode&0x7FF) << 21
	v |= uint64(n.ECUInstance&0x7) << 32
	v |= uint64(n.FunctionInstance&0x1F) << 35
	v |= uint64(n.Function) << 40
	v |= uint64(n.VehicleSystem&0x7F) << 49
	v |= uint64(n.VehicleSystemInst&0xF) << 56
	v |= uint64(n.IndustryGroup&0x7) << 60
	if n.ArbitraryAddress {
		v |= uint64(1) << 63
	}
	return v
}

// DecodeName unpacks a 64-bit wire NAME.
func DecodeName(v uint64) Name {
	return Name{
		IdentityNumber:    uint32(v & 0x1FFFFF),
		ManufacturerCode:  uint16((v >> 21) & 0x7FF),
		ECUInstance:       uint8((v >> 32) & 0x7),
		FunctionInstance:  uint8((v >> 35) & 0x1F),
		Function:          uint8((v >> 40) & 0xFF),
		VehicleSystem:     uint8((v >> 49) & 0x7F),
		VehicleSystemInst: uint8((v >> 56) & 0xF),
		IndustryGroup:     uint8((v >> 60) & 0x7),
		ArbitraryAddress:  v&(uint64(1)<<63) != 0,
	}
}

// DefaultGatewayName is the stable NAME this gateway claims with: industry
// group 0 (global), function 130 (a generic telematics-gateway-style
// diagnostic node), and a fixed manufacturer/identity pair. A deployment
// that runs several gateways on the same bus should vary IdentityNumber.
var DefaultGatewayName = Name{
	IdentityNumber:   1,
	ManufacturerCode: 0x7FF, // reserved/experimental range
	Function:         130,
	IndustryGroup:    0,
	ArbitraryAddress: true,
}
