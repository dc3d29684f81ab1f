package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable bech32 prefix of an address.
type AddressPrefix string

// SVTPrefix is the prefix used for splitvault party addresses.
const SVTPrefix AddressPrefix = "svt"

const addressLength = 20

// Address represents a 20-byte splitvault address with its prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [addressLength]byte
}

// NewAddress builds an address from raw bytes. The slice must be exactly 20
// bytes long.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != addressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long (got %d)", addressLength, len(b))
	}
	addr := Address{prefix: prefix}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is NewAddress for callers holding known-good bytes, such as
// tests and genesis decoding. It panics on malformed input.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the address in bech32 form, e.g. "svt1...".
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw 20-byte payload.
func (a Address) Bytes() []byte {
	out := make([]byte, addressLength)
	copy(out, a.bytes[:])
	return out
}

// Raw returns the payload as a fixed-size array, the form the ledger engine
// compares identities in.
func (a Address) Raw() [20]byte { return a.bytes }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 string into an Address. The prefix is
// preserved; callers that require the splitvault prefix should check it.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// DecodeSVT parses a bech32 string and additionally enforces the splitvault
// prefix, returning the raw identity used by the engine.
func DecodeSVT(addrStr string) ([20]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != SVTPrefix {
		return [20]byte{}, fmt.Errorf("unexpected address prefix %q (want %q)", addr.Prefix(), SVTPrefix)
	}
	return addr.Raw(), nil
}

// EncodeSVT renders a raw identity in the canonical bech32 form.
func EncodeSVT(raw [20]byte) string {
	return MustNewAddress(SVTPrefix, raw[:]).String()
}
