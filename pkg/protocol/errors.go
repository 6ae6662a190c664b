package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchCodec is returned when a frame header carries an unknown
	// codec byte, or a codec name fails to parse. The stream cannot be
	// resynchronized after this error and must be closed.
	ErrNoSuchCodec = errors.New("no such codec")

	// ErrCodecUnsupported is returned for codec identifiers that are part
	// of the wire protocol but have no implementation in this build
	// (currently FlexBuffers).
	ErrCodecUnsupported = errors.New("codec not supported")
)

// TooLongError reports an encoded payload exceeding MaxDataLen.
type TooLongError struct {
	Codec Codec
	Len   int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("%s payload too long: %d bytes (max %d)", e.Codec, e.Len, MaxDataLen)
}

// InvalidContentError wraps a failure to (de)serialize a Content value to
// its canonical CBOR form.
type InvalidContentError struct {
	cause error
}

func (e *InvalidContentError) Error() string {
	return fmt.Sprintf("invalid content format: %v", e.cause)
}

func (e *InvalidContentError) Unwrap() error {
	return e.cause
}
