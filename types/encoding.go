package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to the
// base64 default.
type HexBytes []byte

func (b *HexBytes) String() string {
	return hex.EncodeToString(*b)
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+2)
	enc[0] = '"'
	hex.Encode(enc[1:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	data = data[1 : len(data)-1]

	// Strip a leading "0x" prefix, for backwards compatibility.
	if len(data) >= 2 && data[0] == '0' && (data[1] == 'x' || data[1] == 'X') {
		data = data[2:]
	}

	decLen := hex.DecodedLen(len(data))
	if cap(*b) < decLen {
		*b = make([]byte, decLen)
	}
	*b = (*b)[:decLen]
	if _, err := hex.Decode(*b, data); err != nil {
		return err
	}
	return nil
}

// BigInt interprets b as a big-endian unsigned integer.
func (b HexBytes) BigInt() *big.Int {
	return new(big.Int).SetBytes(b)
}

// HexStringToHexBytes converts a hex string to a HexBytes.
// It strips a leading '0x' or '0X' if found, for backwards compatibility.
// Panics if the string is not a valid hex string.
func HexStringToHexBytes(hexString string) HexBytes {
	if len(hexString) >= 2 && hexString[0] == '0' && (hexString[1] == 'x' || hexString[1] == 'X') {
		hexString = hexString[2:]
	}
	b, err := hex.DecodeString(hexString)
	if err != nil {
		panic(err)
	}
	return b
}

// ScalarToBytes encodes a scalar field element as a fixed-width big-endian
// byte slice of ScalarSize bytes. This is the wire encoding the relay and the
// verifier contract expect for roots, nullifiers and public signals. Note
// that proof curve points use the proving artifact's own (little-endian)
// convention instead; the two encodings must not be mixed up.
func ScalarToBytes(i *big.Int) HexBytes {
	return HexBytes(i.FillBytes(make([]byte, ScalarSize)))
}

// ScalarFromBytes decodes a fixed-width big-endian scalar. It returns an
// error if the slice has the wrong length.
func ScalarFromBytes(b []byte) (*big.Int, error) {
	if len(b) != ScalarSize {
		return nil, fmt.Errorf("wrong scalar length %d, want %d", len(b), ScalarSize)
	}
	return new(big.Int).SetBytes(b), nil
}
