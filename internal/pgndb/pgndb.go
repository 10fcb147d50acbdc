// Package pgndb implements the PGN parameter database and its pure decoder.
// The database is an immutable table of parameter descriptors indexed by
// PGN, loaded from a CSV with columns
// {PGN,SPN,Name,StartByte,StartBit,BitLength,Resolution,Offset,Unit}.
package pgndb

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ParamDescriptor is one SPN within a PGN: immutable once loaded.
type ParamDescriptor struct {
	PGN       uint32
	SPN       uint32
	Name      string
	StartByte int
	StartBit  int
	BitLength int
	Scale     float64
	Offset    float64
	Unit      string
}

// Database indexes ParamDescriptors by PGN. The zero value has no entries;
// use Load or LoadDefault.
type Database struct {
	byPGN map[uint32][]ParamDescriptor
}

// NewDatabase returns an empty database, useful for tests that add
// descriptors directly via Add.
func NewDatabase() *Database {
	return &Database{byPGN: make(map[uint32][]ParamDescriptor)}
}

// Add registers one descriptor, preserving insertion order within its PGN,
// which is the tie-break rule for overlapping SPNs.
func (d *Database) Add(p ParamDescriptor) {
	d.byPGN[p.PGN] = append(d.byPGN[p.PGN], p)
}

// Lookup returns the descriptors for pgn, in table order, and whether the
// PGN is known at all.
func (d *Database) Lookup(pgn uint32) ([]ParamDescriptor, bool) {
	list, ok := d.byPGN[pgn]
	return list, ok
}

// Load reads a PGN CSV (header row required) into a new Database.
func Load(r io.Reader) (*Database, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pgndb: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	required := []string{"PGN", "SPN", "Name", "StartByte", "StartBit", "BitLength", "Resolution", "Offset", "Unit"}
	for _, c := range required {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("pgndb: missing column %q", c)
		}
	}

	db := NewDatabase()
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pgndb: read row: %w", err)
		}

		pgn, err := parseUint(row[col["PGN"]])
		if err != nil {
			return nil, fmt.Errorf("pgndb: PGN: %w", err)
		}
		spn, err := parseUint(row[col["SPN"]])
		if err != nil {
			return nil, fmt.Errorf("pgndb: SPN: %w", err)
		}
		startByte, err := strconv.Atoi(row[col["StartByte"]])
		if err != nil {
			return nil, fmt.Errorf("pgndb: StartByte: %w", err)
		}
		startBit, err := strconv.Atoi(row[col["StartBit"]])
		if err != nil {
			return nil, fmt.Errorf("pgndb: StartBit: %w", err)
		}
		bitLength, err := strconv.Atoi(row[col["BitLength"]])
		if err != nil {
			return nil, fmt.Errorf("pgndb: BitLength: %w", err)
		}
		scale, err := strconv.ParseFloat(row[col["Resolution"]], 64)
		if err != nil {
			return nil, fmt.Errorf("pgndb: Resolution: %w", err)
		}
		offset, err := strconv.ParseFloat(row[col["Offset"]], 64)
		if err != nil {
			return nil, fmt.Errorf("pgndb: Offset: %w", err)
		}

		db.Add(ParamDescriptor{
			PGN:       uint32(pgn),
			SPN:       uint32(spn),
			Name:      row[col["Name"]],
			StartByte: startByte,
			StartBit:  startBit,
			BitLength: bitLength,
			Scale:     scale,
			Offset:    offset,
			Unit:      row[col["Unit"]],
		})
	}
	return db, nil
}

func parseUint(s string) (uint64, error) {
	if len(s) > 1 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
