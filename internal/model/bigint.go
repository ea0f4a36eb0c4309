package model

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// bigIntExt is the msgpack extension id of BigInt.
const bigIntExt int8 = 1

func init() {
	msgpack.RegisterExt(bigIntExt, (*BigInt)(nil))
}

// BigInt is an encoded integer too large for int64, held as its decimal
// digits. It serializes as a bare JSON number.
type BigInt string

// MarshalJSON implements json.Marshaler.
func (b BigInt) MarshalJSON() ([]byte, error) {
	if b == "" {
		return nil, fmt.Errorf("empty big integer")
	}
	return []byte(b), nil
}

// MarshalMsgpack implements msgpack.Marshaler.
func (b *BigInt) MarshalMsgpack() ([]byte, error) {
	return []byte(*b), nil
}

// UnmarshalMsgpack implements msgpack.Unmarshaler.
func (b *BigInt) UnmarshalMsgpack(data []byte) error {
	*b = BigInt(data)
	return nil
}
