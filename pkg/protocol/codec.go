package protocol

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec identifies the structured-object serialization carried inside a
// frame. The codec in use is per-ingress configuration; both sides of a
// connection must agree on it out-of-band, but every frame still carries the
// codec byte so peers can introspect a stream.
type Codec uint8

const (
	CodecJSON    Codec = 0
	CodecMsgPack Codec = 1
	CodecCBOR    Codec = 2
	// CodecFlexBuffers is part of the wire protocol but has no Go
	// implementation; encoding or decoding with it fails with
	// ErrCodecUnsupported.
	CodecFlexBuffers Codec = 3
)

// CodecFromByte validates a codec byte from a frame header.
func CodecFromByte(b uint8) (Codec, error) {
	if b > uint8(CodecFlexBuffers) {
		return 0, ErrNoSuchCodec
	}
	return Codec(b), nil
}

// ParseCodec accepts the codec name or its numeric wire value.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "json", "0":
		return CodecJSON, nil
	case "msgpack", "1":
		return CodecMsgPack, nil
	case "cbor", "2":
		return CodecCBOR, nil
	case "flexbuffers", "3":
		return CodecFlexBuffers, nil
	default:
		return 0, ErrNoSuchCodec
	}
}

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecMsgPack:
		return "msgpack"
	case CodecCBOR:
		return "cbor"
	case CodecFlexBuffers:
		return "flexbuffers"
	default:
		return "unknown"
	}
}

func (c Codec) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText lets configuration layers parse codec names directly.
func (c *Codec) UnmarshalText(text []byte) error {
	parsed, err := ParseCodec(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Marshal serializes v with the codec.
func (c Codec) Marshal(v any) ([]byte, error) {
	switch c {
	case CodecJSON:
		return json.Marshal(v)
	case CodecMsgPack:
		return msgpack.Marshal(v)
	case CodecCBOR:
		return cbor.Marshal(v)
	case CodecFlexBuffers:
		return nil, ErrCodecUnsupported
	default:
		return nil, ErrNoSuchCodec
	}
}

// Unmarshal deserializes data with the codec.
func (c Codec) Unmarshal(data []byte, v any) error {
	switch c {
	case CodecJSON:
		return json.Unmarshal(data, v)
	case CodecMsgPack:
		return msgpack.Unmarshal(data, v)
	case CodecCBOR:
		return cbor.Unmarshal(data, v)
	case CodecFlexBuffers:
		return ErrCodecUnsupported
	default:
		return ErrNoSuchCodec
	}
}
