package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textContent(t *testing.T, s string) Content {
	t.Helper()
	c, err := DataContent("text/plain; charset=utf-8", []byte(s))
	require.NoError(t, err)
	return c
}

func testMessage(t *testing.T) Message {
	t.Helper()
	return Message{
		ID:        NewUID(),
		Timestamp: 1700000000000,
		From:      NewUID(),
		To:        NewUID(),
		Content:   textContent(t, "hello"),
	}
}

func supportedCodecs() []Codec {
	return []Codec{CodecJSON, CodecMsgPack, CodecCBOR}
}

func TestCodecParse(t *testing.T) {
	cases := []struct {
		in   string
		want Codec
	}{
		{"json", CodecJSON}, {"0", CodecJSON},
		{"msgpack", CodecMsgPack}, {"1", CodecMsgPack},
		{"cbor", CodecCBOR}, {"2", CodecCBOR},
		{"flexbuffers", CodecFlexBuffers}, {"3", CodecFlexBuffers},
	}
	for _, c := range cases {
		got, err := ParseCodec(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
		assert.Equal(t, c.want.String(), got.String())
	}

	_, err := ParseCodec("protobuf")
	assert.ErrorIs(t, err, ErrNoSuchCodec)

	_, err = CodecFromByte(4)
	assert.ErrorIs(t, err, ErrNoSuchCodec)
}

func TestFlexBuffersUnsupported(t *testing.T) {
	enc := NewEncoder(CodecFlexBuffers)
	var buf bytes.Buffer
	gen := NewTransactionIDGenerator()

	err := enc.Encode(NewPdu(gen.Next(), Ping{}), &buf)
	assert.ErrorIs(t, err, ErrCodecUnsupported)
}

// Every supported codec must round-trip every Pdu variant.
func TestPduRoundTripAllCodecs(t *testing.T) {
	ext := `{"nickname":"alice"}`
	bodies := []Body{
		SignIn{UserID: NewUID(), Token: NewUID()},
		SignOut{},
		Ping{},
		Send{Message: testMessage(t)},
		Push{Message: testMessage(t)},
		Ok{},
		SignedIn{Extension: &ext},
		SignedIn{},
		InvalidToken{UserID: NewUID()},
		Pong{},
		Queued{ID: NewUID()},
		Rejected{ID: NewUID(), Error: "broker down"},
		ErrorResponse{Cause: "Sign-in request expected"},
	}

	for _, codec := range supportedCodecs() {
		gen := NewTransactionIDGenerator()
		enc := NewEncoder(codec)
		dec := NewDecoder()

		for _, body := range bodies {
			pdu := NewPdu(gen.Next(), body)

			var buf bytes.Buffer
			require.NoError(t, enc.Encode(pdu, &buf), "%s %T", codec, body)

			got, err := dec.Decode(&buf)
			require.NoError(t, err, "%s %T", codec, body)
			require.NotNil(t, got)
			assert.Equal(t, pdu.ID, got.ID)
			assert.Equal(t, pdu.Body, got.Body, "%s %T", codec, body)
			assert.Zero(t, buf.Len())

			// An empty buffer yields no frame and no error.
			none, err := dec.Decode(&buf)
			require.NoError(t, err)
			assert.Nil(t, none)
		}
	}
}

// The decoder must hold partial frames across feeds and resume.
func TestDecoderPartialFeed(t *testing.T) {
	for _, codec := range supportedCodecs() {
		gen := NewTransactionIDGenerator()
		enc := NewEncoder(codec)

		var whole bytes.Buffer
		require.NoError(t, enc.Encode(NewPdu(gen.Next(), Ok{}), &whole))
		require.NoError(t, enc.Encode(NewPdu(gen.Next(), Send{Message: testMessage(t)}), &whole))

		frames := whole.Bytes()
		split := len(frames)/2 + 1

		dec := NewDecoder()
		var buf bytes.Buffer
		buf.Write(frames[:split])

		first, err := dec.Decode(&buf)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, Ok{}, first.Body)

		// Second frame is incomplete at this point.
		partial, err := dec.Decode(&buf)
		require.NoError(t, err)
		assert.Nil(t, partial)

		buf.Write(frames[split:])
		second, err := dec.Decode(&buf)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.IsType(t, Send{}, second.Body)
		assert.Zero(t, buf.Len())
	}
}

func TestDecoderUnknownCodecByte(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 0xffffffff)
	buf.Write(hdr[:])

	dec := NewDecoder()
	_, err := dec.Decode(&buf)
	assert.ErrorIs(t, err, ErrNoSuchCodec)
}

// A header declaring the maximum length must reserve without panicking and
// simply wait for data.
func TestDecoderMaxDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(CodecJSON)<<24|MaxDataLen)
	buf.Write(hdr[:])

	dec := NewDecoder()
	pdu, err := dec.Decode(&buf)
	require.NoError(t, err)
	assert.Nil(t, pdu)
}

func TestEncoderTooLong(t *testing.T) {
	gen := NewTransactionIDGenerator()
	enc := NewEncoder(CodecJSON)

	msg := testMessage(t)
	msg.Content.Bytes = bytes.Repeat([]byte{'J'}, MaxDataLen)

	var buf bytes.Buffer
	err := enc.Encode(NewPdu(gen.Next(), Send{Message: msg}), &buf)

	var tooLong *TooLongError
	require.True(t, errors.As(err, &tooLong))
	assert.Equal(t, CodecJSON, tooLong.Codec)
	assert.Greater(t, tooLong.Len, MaxDataLen)
	assert.Zero(t, buf.Len())
}

func TestStreamDecoder(t *testing.T) {
	gen := NewTransactionIDGenerator()
	enc := NewEncoder(CodecCBOR)

	var wire bytes.Buffer
	want := []Body{Ping{}, Pong{}, Queued{ID: NewUID()}}
	for _, b := range want {
		require.NoError(t, enc.Encode(NewPdu(gen.Next(), b), &wire))
	}

	sd := NewStreamDecoder(&wire)
	for _, b := range want {
		pdu, err := sd.Next()
		require.NoError(t, err)
		assert.Equal(t, b, pdu.Body)
	}

	_, err := sd.Next()
	assert.ErrorIs(t, err, io.EOF)
}
