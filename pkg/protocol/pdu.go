package protocol

import "fmt"

// Message is one addressed unit of communication. The id is assigned by the
// sending client; From must equal the sender's authenticated user id.
type Message struct {
	ID        UID     `json:"id" msgpack:"id"`
	Timestamp uint64  `json:"timestamp" msgpack:"timestamp"`
	From      UID     `json:"from" msgpack:"from"`
	To        UID     `json:"to" msgpack:"to"`
	Content   Content `json:"content" msgpack:"content"`
}

// Body is either a Request or a Response carried by a Pdu.
type Body interface {
	isBody()
}

// Request variants sent by clients (and Push, sent by the ingress).
type (
	SignIn struct {
		UserID UID
		Token  UID
	}
	SignOut struct{}
	Ping    struct{}
	Send    struct {
		Message Message
	}
	Push struct {
		Message Message
	}
)

// Response variants.
type (
	Ok       struct{}
	SignedIn struct {
		// Extension carries application-defined sign-in metadata as a
		// JSON document, passed through verbatim from the credential
		// store.
		Extension *string
	}
	InvalidToken struct {
		UserID UID
	}
	Pong   struct{}
	Queued struct {
		ID UID
	}
	Rejected struct {
		ID    UID
		Error string
	}
	ErrorResponse struct {
		Cause string
	}
)

func (SignIn) isBody()        {}
func (SignOut) isBody()       {}
func (Ping) isBody()          {}
func (Send) isBody()          {}
func (Push) isBody()          {}
func (Ok) isBody()            {}
func (SignedIn) isBody()      {}
func (InvalidToken) isBody()  {}
func (Pong) isBody()          {}
func (Queued) isBody()        {}
func (Rejected) isBody()      {}
func (ErrorResponse) isBody() {}

// IsRequest reports whether b is one of the request variants.
func IsRequest(b Body) bool {
	switch b.(type) {
	case SignIn, SignOut, Ping, Send, Push:
		return true
	}
	return false
}

// IsResponse reports whether b is one of the response variants.
func IsResponse(b Body) bool {
	return b != nil && !IsRequest(b)
}

// Pdu is one framed protocol data unit on the client-ingress wire.
type Pdu struct {
	ID   TransactionID
	Body Body
}

// NewPdu pairs a body with its transaction id.
func NewPdu(id TransactionID, body Body) *Pdu {
	return &Pdu{ID: id, Body: body}
}

// pduWire is the flattened tagged representation shared by all codecs.
// Requests carry a "method" tag, responses a "status" tag; the body "type"
// discriminates the two.
type pduWire struct {
	ID   TransactionID `json:"id" msgpack:"id"`
	Body bodyWire      `json:"body" msgpack:"body"`
}

type bodyWire struct {
	Type      string   `json:"type" msgpack:"type"`
	Method    string   `json:"method,omitempty" msgpack:"method,omitempty"`
	Status    string   `json:"status,omitempty" msgpack:"status,omitempty"`
	UserID    *UID     `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	Token     *UID     `json:"token,omitempty" msgpack:"token,omitempty"`
	Message   *Message `json:"message,omitempty" msgpack:"message,omitempty"`
	Extension *string  `json:"extension,omitempty" msgpack:"extension,omitempty"`
	MsgID     *UID     `json:"msg_id,omitempty" msgpack:"msg_id,omitempty"`
	Error     string   `json:"error,omitempty" msgpack:"error,omitempty"`
	Cause     string   `json:"cause,omitempty" msgpack:"cause,omitempty"`
}

const (
	bodyTypeRequest  = "Req"
	bodyTypeResponse = "Resp"
)

func (p *Pdu) toWire() (*pduWire, error) {
	w := &pduWire{ID: p.ID}

	switch b := p.Body.(type) {
	case SignIn:
		uid, tok := b.UserID, b.Token
		w.Body = bodyWire{Type: bodyTypeRequest, Method: "SignIn", UserID: &uid, Token: &tok}
	case SignOut:
		w.Body = bodyWire{Type: bodyTypeRequest, Method: "SignOut"}
	case Ping:
		w.Body = bodyWire{Type: bodyTypeRequest, Method: "Ping"}
	case Send:
		m := b.Message
		w.Body = bodyWire{Type: bodyTypeRequest, Method: "Send", Message: &m}
	case Push:
		m := b.Message
		w.Body = bodyWire{Type: bodyTypeRequest, Method: "Push", Message: &m}
	case Ok:
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "Ok"}
	case SignedIn:
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "SignedIn", Extension: b.Extension}
	case InvalidToken:
		uid := b.UserID
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "InvalidToken", UserID: &uid}
	case Pong:
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "Pong"}
	case Queued:
		id := b.ID
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "Queued", MsgID: &id}
	case Rejected:
		id := b.ID
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "Rejected", MsgID: &id, Error: b.Error}
	case ErrorResponse:
		w.Body = bodyWire{Type: bodyTypeResponse, Status: "Error", Cause: b.Cause}
	default:
		return nil, fmt.Errorf("unknown pdu body %T", p.Body)
	}

	return w, nil
}

func (w *pduWire) toPdu() (*Pdu, error) {
	p := &Pdu{ID: w.ID}
	b := &w.Body

	switch b.Type {
	case bodyTypeRequest:
		switch b.Method {
		case "SignIn":
			if b.UserID == nil || b.Token == nil {
				return nil, fmt.Errorf("sign-in request missing user_id or token")
			}
			p.Body = SignIn{UserID: *b.UserID, Token: *b.Token}
		case "SignOut":
			p.Body = SignOut{}
		case "Ping":
			p.Body = Ping{}
		case "Send":
			if b.Message == nil {
				return nil, fmt.Errorf("send request missing message")
			}
			p.Body = Send{Message: *b.Message}
		case "Push":
			if b.Message == nil {
				return nil, fmt.Errorf("push request missing message")
			}
			p.Body = Push{Message: *b.Message}
		default:
			return nil, fmt.Errorf("unknown request method %q", b.Method)
		}
	case bodyTypeResponse:
		switch b.Status {
		case "Ok":
			p.Body = Ok{}
		case "SignedIn":
			p.Body = SignedIn{Extension: b.Extension}
		case "InvalidToken":
			if b.UserID == nil {
				return nil, fmt.Errorf("invalid-token response missing user_id")
			}
			p.Body = InvalidToken{UserID: *b.UserID}
		case "Pong":
			p.Body = Pong{}
		case "Queued":
			if b.MsgID == nil {
				return nil, fmt.Errorf("queued response missing message id")
			}
			p.Body = Queued{ID: *b.MsgID}
		case "Rejected":
			if b.MsgID == nil {
				return nil, fmt.Errorf("rejected response missing message id")
			}
			p.Body = Rejected{ID: *b.MsgID, Error: b.Error}
		case "Error":
			p.Body = ErrorResponse{Cause: b.Cause}
		default:
			return nil, fmt.Errorf("unknown response status %q", b.Status)
		}
	default:
		return nil, fmt.Errorf("unknown pdu body type %q", b.Type)
	}

	return p, nil
}
