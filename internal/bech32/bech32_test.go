package bech32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownVector(t *testing.T) {
	// BIP-173 valid test vector.
	hrp, data, err := Decode("A12UEL5L")
	require.NoError(t, err)
	assert.Equal(t, "a", hrp)
	assert.Empty(t, data)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}
	encoded, err := EncodeFromBytes("npub", raw)
	require.NoError(t, err)

	hrp, got, err := DecodeToBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, "npub", hrp)
	assert.Equal(t, raw, got)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	_, _, err := Decode("A12UEL5X")
	assert.Error(t, err)
}

func TestDecodeRejectsMixedCase(t *testing.T) {
	_, _, err := Decode("A12uel5L")
	assert.Error(t, err)
}

func TestConvertBitsRejectsOutOfRange(t *testing.T) {
	_, err := ConvertBits([]byte{0xff}, 5, 8, true)
	assert.Error(t, err)
}
