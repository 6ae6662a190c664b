package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// HeadLen is the fixed frame header size:
	// | codec: u8 | length: u24 | big-endian.
	HeadLen = 4

	// MaxDataLen is the maximum frame payload size (~16 MiB). The length
	// field is 24 bits, so a decoded header can never declare more.
	MaxDataLen = (1 << 24) - 1
)

// Encoder serializes Pdus into frames with a fixed codec.
type Encoder struct {
	codec Codec
}

func NewEncoder(codec Codec) *Encoder {
	return &Encoder{codec: codec}
}

func (e *Encoder) Codec() Codec {
	return e.codec
}

// Encode appends one frame (header plus payload) to dst in a single
// buffered operation. Payloads longer than MaxDataLen fail with
// *TooLongError.
func (e *Encoder) Encode(p *Pdu, dst *bytes.Buffer) error {
	wire, err := p.toWire()
	if err != nil {
		return err
	}

	payload, err := e.codec.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encode pdu with %s: %w", e.codec, err)
	}
	if len(payload) > MaxDataLen {
		return &TooLongError{Codec: e.codec, Len: len(payload)}
	}

	head := uint32(e.codec)<<24 | uint32(len(payload))&0xffffff
	dst.Grow(HeadLen + len(payload))

	var hdr [HeadLen]byte
	binary.BigEndian.PutUint32(hdr[:], head)
	dst.Write(hdr[:])
	dst.Write(payload)
	return nil
}

// decodeState tracks the two-phase frame parse: waiting for a complete
// header, then waiting for the declared payload.
type decodeState struct {
	inData bool
	codec  Codec
	length int
}

// Decoder is an incremental frame parser. Feed it buffered stream bytes via
// Decode; it returns one Pdu per complete frame and nil when more input is
// needed. A decode error is fatal for the stream: framing cannot be
// resynchronized, so the caller must close the connection.
type Decoder struct {
	state decodeState
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode consumes at most one frame from src. Returns (nil, nil) when src
// does not yet hold a complete header or payload.
func (d *Decoder) Decode(src *bytes.Buffer) (*Pdu, error) {
	if !d.state.inData {
		if src.Len() < HeadLen {
			return nil, nil
		}

		head := binary.BigEndian.Uint32(src.Next(HeadLen))
		codec, err := CodecFromByte(uint8(head >> 24))
		if err != nil {
			return nil, err
		}

		d.state = decodeState{inData: true, codec: codec, length: int(head & 0xffffff)}
		// Reserve the declared payload up front; the 24-bit length field
		// bounds this at MaxDataLen.
		src.Grow(d.state.length)
	}

	if src.Len() < d.state.length {
		return nil, nil
	}

	payload := src.Next(d.state.length)
	codec := d.state.codec
	d.state = decodeState{}

	var wire pduWire
	if err := codec.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode %d byte %s frame: %w", len(payload), codec, err)
	}
	return wire.toPdu()
}

// StreamDecoder combines a Decoder with an io.Reader, yielding Pdus from a
// byte stream. Not safe for concurrent use; each connection reader owns one.
type StreamDecoder struct {
	r       io.Reader
	dec     *Decoder
	buf     bytes.Buffer
	scratch [4096]byte
}

func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{r: r, dec: NewDecoder()}
}

// Next blocks until a complete frame arrives, the stream ends (io.EOF), or a
// decode error occurs.
func (s *StreamDecoder) Next() (*Pdu, error) {
	for {
		pdu, err := s.dec.Decode(&s.buf)
		if err != nil {
			return nil, err
		}
		if pdu != nil {
			return pdu, nil
		}

		n, err := s.r.Read(s.scratch[:])
		if n > 0 {
			s.buf.Write(s.scratch[:n])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// WritePdu encodes p and writes the whole frame with one Write call.
func WritePdu(w io.Writer, enc *Encoder, p *Pdu) error {
	var buf bytes.Buffer
	if err := enc.Encode(p, &buf); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
