package pgndb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	csv := `PGN,SPN,Name,StartByte,StartBit,BitLength,Resolution,Offset,Unit
61444,190,Engine_Speed,3,0,16,0.125,0,rpm
65265,84,Wheel-Based_Vehicle_Speed,1,0,16,1,0,km/h
`
	db, err := Load(strings.NewReader(csv))
	require.NoError(t, err)

	descs, ok := db.Lookup(61444)
	require.True(t, ok)
	require.Len(t, descs, 1)
	assert.Equal(t, "Engine_Speed", descs[0].Name)
	assert.Equal(t, 0.125, descs[0].Scale)
}

func TestLoadCSVHexPGN(t *testing.T) {
	csv := `PGN,SPN,Name,StartByte,StartBit,BitLength,Resolution,Offset,Unit
0xF004,190,Engine_Speed,3,0,16,0.125,0,rpm
`
	db, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	_, ok := db.Lookup(0xF004)
	assert.True(t, ok)
}

func TestLoadCSVMissingColumnFails(t *testing.T) {
	csv := `PGN,SPN,Name
61444,190,Engine_Speed
`
	_, err := Load(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestLoadCSVBadNumberFails(t *testing.T) {
	csv := `PGN,SPN,Name,StartByte,StartBit,BitLength,Resolution,Offset,Unit
not-a-number,190,Engine_Speed,3,0,16,0.125,0,rpm
`
	_, err := Load(strings.NewReader(csv))
	assert.Error(t, err)
}
