package pgndb

// Well-known PGNs this gateway decodes. Names match the allow-listed SPN
// names the J1939 listener publishes.
const (
	PGNElectronicEngineController1  uint32 = 61444 // 0xF004 EEC1
	PGNVehicleElectronicRetarder     uint32 = 65215 // CCVS-adjacent distance source
	PGNFuelEconomy                   uint32 = 65266 // 0xFEF2 LFE
	PGNHighResolutionVehicleDistance uint32 = 65217 // 0xFEC1 VDHR
	PGNVehicleDistance               uint32 = 65248 // 0xFEE0 VD
	PGNCruiseControlVehicleSpeed     uint32 = 65265 // 0xFEF1 CCVS1
	PGNDashDisplay                   uint32 = 65276 // 0xFEFC DD
	PGNAmbientConditions             uint32 = 65270 // 0xFEF6
	PGNVehicleDirSpeed               uint32 = 65256 // 0xFEE8 pitch/altitude

	// Listen-only (negative request interval): heard but never actively
	// requested.
	PGNEngineTemperature1       uint32 = 65262 // 0xFEEE ET1
	PGNAmbientConditions2       uint32 = 65194
	PGNElectronicEngineCtrlr2   uint32 = 61443
	PGNElectronicTransCtrlr2    uint32 = 61450
	PGNTirePressure             uint32 = 65153
	PGNElectronicBrakeCtrlr2    uint32 = 65132
)

// AllowList is the set of decoded SPN names the J1939 listener is permitted
// to publish to the bus. Names are matched exactly against the
// Decode() output keys.
var AllowList = map[string]bool{
	"Wheel-Based_Vehicle_Speed":            true,
	"Fuel_Level":                           true,
	"Fuel_Rate":                            true,
	"Fuel_Used":                            true,
	"Vehicle_Distance":                     true,
	"Distance":                             true,
	"Pitch":                                true,
	"High_Resolution_Total_Vehicle_Distance": true,
	"Total_Vehicle_Distance":               true,
}

// LoadDefault builds the built-in PGN database for the signals this gateway
// uses. It does not cover every PGN in the J1939 request schedule (see
// internal/j1939.DefaultSchedule); frames of a scheduled PGN with no entry
// here decode as not found. Field layouts follow the SAE J1939-71
// conventions.
func LoadDefault() *Database {
	db := NewDatabase()

	// SPN 190 Engine Speed, 0.125 rpm/bit at bytes 4-5.
	db.Add(ParamDescriptor{
		PGN: PGNElectronicEngineController1, SPN: 190, Name: "Engine_Speed",
		StartByte: 3, StartBit: 0, BitLength: 16, Scale: 0.125, Offset: 0, Unit: "rpm",
	})
	db.Add(ParamDescriptor{
		PGN: PGNElectronicEngineController1, SPN: 513, Name: "Engine_Percent_Load",
		StartByte: 2, StartBit: 0, BitLength: 8, Scale: 1, Offset: -125, Unit: "%",
	})

	// SPN 84 Wheel-Based Vehicle Speed at bytes 2-3.
	db.Add(ParamDescriptor{
		PGN: PGNCruiseControlVehicleSpeed, SPN: 84, Name: "Wheel-Based_Vehicle_Speed",
		StartByte: 1, StartBit: 0, BitLength: 16, Scale: 1, Offset: 0, Unit: "km/h",
	})

	db.Add(ParamDescriptor{
		PGN: PGNFuelEconomy, SPN: 183, Name: "Fuel_Rate",
		StartByte: 0, StartBit: 0, BitLength: 16, Scale: 0.05, Offset: 0, Unit: "L/h",
	})
	db.Add(ParamDescriptor{
		PGN: PGNFuelEconomy, SPN: 250, Name: "Fuel_Used",
		StartByte: 2, StartBit: 0, BitLength: 32, Scale: 0.5, Offset: 0, Unit: "L",
	})

	db.Add(ParamDescriptor{
		PGN: PGNHighResolutionVehicleDistance, SPN: 917, Name: "High_Resolution_Total_Vehicle_Distance",
		StartByte: 0, StartBit: 0, BitLength: 32, Scale: 0.005, Offset: 0, Unit: "km",
	})
	db.Add(ParamDescriptor{
		PGN: PGNVehicleDistance, SPN: 245, Name: "Total_Vehicle_Distance",
		StartByte: 0, StartBit: 0, BitLength: 32, Scale: 0.125, Offset: 0, Unit: "km",
	})
	db.Add(ParamDescriptor{
		PGN: PGNVehicleElectronicRetarder, SPN: 244, Name: "Distance",
		StartByte: 0, StartBit: 0, BitLength: 32, Scale: 0.1, Offset: 0, Unit: "km",
	})
	db.Add(ParamDescriptor{
		PGN: PGNVehicleElectronicRetarder, SPN: 85, Name: "Vehicle_Distance",
		StartByte: 4, StartBit: 0, BitLength: 16, Scale: 1, Offset: 0, Unit: "km",
	})

	db.Add(ParamDescriptor{
		PGN: PGNDashDisplay, SPN: 96, Name: "Fuel_Level",
		StartByte: 1, StartBit: 0, BitLength: 8, Scale: 0.4, Offset: 0, Unit: "%",
	})

	db.Add(ParamDescriptor{
		PGN: PGNVehicleDirSpeed, SPN: 7073, Name: "Pitch",
		StartByte: 0, StartBit: 0, BitLength: 16, Scale: 0.0078125, Offset: -250, Unit: "deg",
	})

	db.Add(ParamDescriptor{
		PGN: PGNEngineTemperature1, SPN: 110, Name: "Engine_Coolant_Temperature",
		StartByte: 0, StartBit: 0, BitLength: 8, Scale: 1, Offset: -40, Unit: "degC",
	})
	db.Add(ParamDescriptor{
		PGN: PGNAmbientConditions, SPN: 171, Name: "Ambient_Air_Temperature",
		StartByte: 3, StartBit: 0, BitLength: 16, Scale: 0.03125, Offset: -273, Unit: "degC",
	})

	return db
}
