package uds

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSingleFrame(t *testing.T) {
	frame, err := encodeSingleFrame([]byte{0x22, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, [8]byte{0x03, 0x22, 0x01, 0x02, 0, 0, 0, 0}, frame)
}

func TestEncodeSingleFrameTooLong(t *testing.T) {
	_, err := encodeSingleFrame(make([]byte, 8))
	assert.Error(t, err)
}

func TestEncodeFlowControl(t *testing.T) {
	frame := encodeFlowControl()
	assert.Equal(t, byte(0x30), frame[0])
	assert.Equal(t, byte(0), frame[1])
	assert.Equal(t, byte(0), frame[2])
}

func TestAssemblerSingleFrame(t *testing.T) {
	var a isotpAssembler
	msg, done, err := a.feed([]byte{0x03, 0x62, 0x01, 0x02, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte{0x62, 0x01, 0x02}, msg)
}

func TestAssemblerMultiFrame(t *testing.T) {
	// 12-byte message split across a first frame and one consecutive frame.
	payload := []byte{0x62, 0x01, 0x02, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	var a isotpAssembler
	first := append([]byte{0x10, byte(len(payload))}, payload[:6]...)
	msg, done, err := a.feed(first)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, msg)

	consecutive := append([]byte{0x21}, payload[6:]...)
	msg, done, err = a.feed(consecutive)
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, bytes.Equal(payload, msg))
}

func TestAssemblerSequenceMismatch(t *testing.T) {
	var a isotpAssembler
	_, _, err := a.feed([]byte{0x10, 20, 1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	_, _, err = a.feed([]byte{0x22, 7, 8, 9, 10, 11, 12, 13}) // expected seq 1, got 2
	assert.Error(t, err)
}

func TestAssemblerConsecutiveWithoutFirstFrame(t *testing.T) {
	var a isotpAssembler
	_, _, err := a.feed([]byte{0x21, 1, 2, 3, 4, 5, 6, 7})
	assert.Error(t, err)
}

func TestAssemblerEmptyPayload(t *testing.T) {
	var a isotpAssembler
	_, _, err := a.feed(nil)
	assert.Error(t, err)
}
