// Package bech32 implements the BIP-173 bech32 checksum encoding used for
// Nostr's npub/nsec keys and for LNURL-pay "lnurl" bech32 URLs.
package bech32

import (
	"fmt"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var charsetRev = func() [128]int8 {
	var rev [128]int8
	for i := range rev {
		rev[i] = -1
	}
	for i, c := range charset {
		rev[c] = int8(i)
	}
	return rev
}()

func polymod(values []byte) uint32 {
	gen := []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		b := byte(chk >> 25)
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func createChecksum(hrp string, data []byte) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func verifyChecksum(hrp string, data []byte) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

// ConvertBits regroups a bit string from inBits-sized groups to
// outBits-sized groups, padding the final group when pad is true (used
// to go between 8-bit bytes and 5-bit bech32 words).
func ConvertBits(data []byte, inBits, outBits uint, pad bool) ([]byte, error) {
	var (
		acc   uint32
		bits  uint
		out   []byte
		maxV  = uint32(1)<<outBits - 1
	)
	for _, b := range data {
		if uint32(b)>>inBits != 0 {
			return nil, fmt.Errorf("invalid data range for convertbits")
		}
		acc = (acc << inBits) | uint32(b)
		bits += inBits
		for bits >= outBits {
			bits -= outBits
			out = append(out, byte((acc>>bits)&maxV))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(outBits-bits))&maxV))
		}
	} else if bits >= inBits || ((acc<<(outBits-bits))&maxV) != 0 {
		return nil, fmt.Errorf("invalid padding in convertbits")
	}
	return out, nil
}

// Encode produces a bech32 string with the given human-readable part and
// 5-bit-word data (already converted via ConvertBits).
func Encode(hrp string, data []byte) (string, error) {
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("invalid hrp character %q", c)
		}
	}
	combined := append(data, createChecksum(hrp, data)...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range combined {
		sb.WriteByte(charset[b])
	}
	return sb.String(), nil
}

// EncodeFromBytes is a convenience wrapper that converts raw 8-bit bytes
// to 5-bit words before encoding (the common case for npub/nsec/lnurl).
func EncodeFromBytes(hrp string, raw []byte) (string, error) {
	words, err := ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits for %s encoding: %w", hrp, err)
	}
	return Encode(hrp, words)
}

// Decode parses a bech32 string into its human-readable part and 5-bit
// word data.
func Decode(s string) (hrp string, data []byte, err error) {
	if len(s) < 8 || len(s) > 90 {
		return "", nil, fmt.Errorf("invalid bech32 string length")
	}
	lower, upper := s, s
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", nil, fmt.Errorf("bech32 string has mixed case")
	}
	s = strings.ToLower(lower)
	_ = upper
	sep := strings.LastIndexByte(s, '1')
	if sep < 1 || sep+7 > len(s) {
		return "", nil, fmt.Errorf("invalid bech32 separator position")
	}
	hrp = s[:sep]
	dataPart := s[sep+1:]
	data = make([]byte, len(dataPart))
	for i, c := range dataPart {
		if c > 127 || charsetRev[c] == -1 {
			return "", nil, fmt.Errorf("invalid bech32 character %q", c)
		}
		data[i] = byte(charsetRev[c])
	}
	if !verifyChecksum(hrp, data) {
		return "", nil, fmt.Errorf("invalid bech32 checksum")
	}
	return hrp, data[:len(data)-6], nil
}

// DecodeToBytes decodes a bech32 string and converts its 5-bit words back
// to raw 8-bit bytes (the common case for npub/nsec).
func DecodeToBytes(s string) (hrp string, raw []byte, err error) {
	hrp, data, err := Decode(s)
	if err != nil {
		return "", nil, err
	}
	raw, err = ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("convert bits decoding %s: %w", hrp, err)
	}
	return hrp, raw, nil
}
