package protocol

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// UID is a 128-bit identifier used for users, messages and tokens.
//
// Wire representations:
//   - binary codecs (MsgPack, CBOR, broker payload): 16 raw bytes
//   - JSON and registry/cache keys: 32-char lowercase hex, no dashes
type UID uuid.UUID

// Nil is the zero UID.
var Nil UID

// NewUID returns a random (version 4) UID.
func NewUID() UID {
	return UID(uuid.New())
}

// ParseUID accepts 32-char hex as well as the canonical dashed UUID form.
func ParseUID(s string) (UID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("invalid uid %q: %w", s, err)
	}
	return UID(u), nil
}

// UIDFromBytes builds a UID from exactly 16 bytes.
func UIDFromBytes(b []byte) (UID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return Nil, fmt.Errorf("invalid uid bytes: %w", err)
	}
	return UID(u), nil
}

// String returns the 32-char lowercase hex form.
func (u UID) String() string {
	return hex.EncodeToString(u[:])
}

// Bytes returns the 16-byte form as a fresh slice.
func (u UID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, u[:])
	return b
}

// IsNil reports whether the UID is all zero.
func (u UID) IsNil() bool {
	return u == Nil
}

func (u UID) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 34)
	buf[0] = '"'
	hex.Encode(buf[1:33], u[:])
	buf[33] = '"'
	return buf, nil
}

func (u *UID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid uid json: %s", data)
	}
	id, err := ParseUID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler, which the CBOR codec
// uses to emit the 16-byte form.
func (u UID) MarshalBinary() ([]byte, error) {
	return u.Bytes(), nil
}

func (u *UID) UnmarshalBinary(data []byte) error {
	id, err := UIDFromBytes(data)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder with the 16-byte form.
func (u UID) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(u[:])
}

func (u *UID) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	return u.UnmarshalBinary(b)
}
