package protocol

import (
	"fmt"
	"mime"
	"net/url"

	"github.com/fxamacker/cbor/v2"
)

// ContentKind tags the Content union.
type ContentKind string

const (
	ContentData ContentKind = "Data"
	ContentLink ContentKind = "Link"
)

// Content is the payload of a Message: either an inline Data blob with a
// mime type, or a Link to external content. Data bytes are opaque to the
// system end to end.
type Content struct {
	Kind ContentKind `json:"type" msgpack:"type"`

	// Data fields. Mime is carried in its canonical string form.
	Mime  string `json:"mime,omitempty" msgpack:"mime,omitempty"`
	Bytes []byte `json:"bytes,omitempty" msgpack:"bytes,omitempty"`

	// Link field, canonical string form of the URL.
	URL string `json:"url,omitempty" msgpack:"url,omitempty"`
}

// DataContent builds a Data content. The mime type is validated and
// normalized to its canonical string form.
func DataContent(mimeType string, data []byte) (Content, error) {
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return Content{}, fmt.Errorf("invalid mime type %q: %w", mimeType, err)
	}
	return Content{Kind: ContentData, Mime: mime.FormatMediaType(mt, params), Bytes: data}, nil
}

// LinkContent builds a Link content from an absolute URL.
func LinkContent(rawURL string) (Content, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Content{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return Content{}, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return Content{Kind: ContentLink, URL: u.String()}, nil
}

// Validate checks the union tag and the fields it requires.
func (c *Content) Validate() error {
	switch c.Kind {
	case ContentData:
		if c.Mime == "" {
			return fmt.Errorf("data content missing mime type")
		}
		if _, _, err := mime.ParseMediaType(c.Mime); err != nil {
			return fmt.Errorf("invalid mime type %q: %w", c.Mime, err)
		}
	case ContentLink:
		if _, err := url.Parse(c.URL); err != nil {
			return fmt.Errorf("invalid url %q: %w", c.URL, err)
		}
	default:
		return fmt.Errorf("unknown content kind %q", c.Kind)
	}
	return nil
}

// canonicalCBOR produces deterministic output so that content bytes compare
// equal across services regardless of which one serialized them.
var canonicalCBOR cbor.EncMode

func init() {
	var err error
	canonicalCBOR, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// MarshalContent serializes a Content to its canonical CBOR representation.
// This is the only form in which content crosses the broker and service RPC
// boundaries, so intermediate services need not understand the wire codec.
func MarshalContent(c *Content) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, &InvalidContentError{cause: err}
	}
	data, err := canonicalCBOR.Marshal(c)
	if err != nil {
		return nil, &InvalidContentError{cause: err}
	}
	return data, nil
}

// UnmarshalContent parses the canonical CBOR representation of a Content.
func UnmarshalContent(data []byte) (Content, error) {
	var c Content
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Content{}, &InvalidContentError{cause: err}
	}
	if err := c.Validate(); err != nil {
		return Content{}, &InvalidContentError{cause: err}
	}
	return c, nil
}
