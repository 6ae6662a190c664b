package comet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

// outboundCapacity bounds the per-connection write queue. A client that
// stops reading stalls its own queue without holding buffers for anyone
// else.
const outboundCapacity = 32

// Authorizer validates a sign-in credential. Satisfied by
// rpc.AuthorizerClient.
type Authorizer interface {
	SignIn(ctx context.Context, token *rpc.Token) (*rpc.SignInResult, error)
}

// Enqueuer hands a message to the broker. Satisfied by rpc.ReceiverClient.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *rpc.Message) (*rpc.EnqueueResult, error)
}

// Connection is one signed-in client connection. A reader goroutine (serve)
// dispatches requests; a writer goroutine drains the outbound queue, which
// both the reader and Comet.Push feed.
type Connection struct {
	userID protocol.UID
	conn   net.Conn

	enc *protocol.Encoder
	dec *protocol.StreamDecoder

	outbound chan *protocol.Pdu
	idGen    *protocol.TransactionIDGenerator

	// writeMu serializes socket writes between the writer goroutine and the
	// direct replies sent by serve and the handshake.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(conn net.Conn, codec protocol.Codec) *Connection {
	return &Connection{
		conn:     conn,
		enc:      protocol.NewEncoder(codec),
		dec:      protocol.NewStreamDecoder(conn),
		outbound: make(chan *protocol.Pdu, outboundCapacity),
		idGen:    protocol.NewTransactionIDGenerator(),
		closed:   make(chan struct{}),
	}
}

// UserID returns the authenticated user, valid after the handshake.
func (c *Connection) UserID() protocol.UID {
	return c.userID
}

// shutdown closes the underlying socket, which unblocks the reader and
// writer goroutines.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// handshake reads the first frame, which must be a sign-in request, and
// checks the credential. Any other first frame or a rejected credential
// fails the handshake and the connection is dropped. The acknowledgement is
// not sent here; the caller registers the session first and then calls
// acknowledgeSignIn, so a client never sees a confirmed sign-in that has no
// directory entry behind it.
func (c *Connection) handshake(ctx context.Context, auth Authorizer, timeout time.Duration) (protocol.TransactionID, *string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.TransactionID{}, nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	pdu, err := c.dec.Next()
	if err != nil {
		return protocol.TransactionID{}, nil, fmt.Errorf("read sign-in request: %w", err)
	}

	signIn, ok := pdu.Body.(protocol.SignIn)
	if !ok {
		c.reply(pdu.ID, protocol.ErrorResponse{Cause: "sign-in request expected"})
		return protocol.TransactionID{}, nil, fmt.Errorf("unexpected first request %T", pdu.Body)
	}

	result, err := auth.SignIn(ctx, &rpc.Token{
		UserID: signIn.UserID.String(),
		Token:  signIn.Token.String(),
	})
	if err != nil {
		c.reply(pdu.ID, protocol.ErrorResponse{Cause: err.Error()})
		return protocol.TransactionID{}, nil, fmt.Errorf("sign in: %w", err)
	}
	if !result.OK {
		c.reply(pdu.ID, protocol.InvalidToken{UserID: signIn.UserID})
		return protocol.TransactionID{}, nil, errors.New("sign in: invalid token")
	}

	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return protocol.TransactionID{}, nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	c.userID = signIn.UserID
	return pdu.ID, result.Extension, nil
}

// acknowledgeSignIn confirms the handshake to the client.
func (c *Connection) acknowledgeSignIn(id protocol.TransactionID, extension *string) error {
	if err := c.write(protocol.NewPdu(id, protocol.SignedIn{Extension: extension})); err != nil {
		return err
	}
	logger.Info("User signed in", "user_id", c.userID, "address", c.conn.RemoteAddr())
	return nil
}

// reply writes a response directly, outside the outbound queue. Only used
// during the handshake and for terminal errors; write failures are logged
// and dropped since the connection is going away.
func (c *Connection) reply(id protocol.TransactionID, body protocol.Body) {
	if err := c.write(protocol.NewPdu(id, body)); err != nil {
		logger.Debug("Failed to send response to client", "error", err)
	}
}

func (c *Connection) write(pdu *protocol.Pdu) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WritePdu(c.conn, c.enc, pdu); err != nil {
		return fmt.Errorf("write pdu: %w", err)
	}
	metrics.PduSent()
	return nil
}

// writeLoop drains the outbound queue into the socket until the connection
// closes.
func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case pdu := <-c.outbound:
			if err := c.write(pdu); err != nil {
				logger.Error("Failed to send pdu to client", "user_id", c.userID, "error", err)
				c.shutdown()
				return
			}
		}
	}
}

// serve dispatches client requests until the connection drops, the client
// signs out, or it violates the protocol.
func (c *Connection) serve(ctx context.Context, enqueuer Enqueuer) {
	go c.writeLoop()

	for {
		pdu, err := c.dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedConn(err) {
				logger.Warn("Failed to read pdu from client", "user_id", c.userID, "error", err)
			}
			return
		}
		metrics.PduReceived()

		switch body := pdu.Body.(type) {
		case protocol.Ping:
			if !c.send(protocol.NewPdu(pdu.ID, protocol.Pong{})) {
				return
			}

		case protocol.Send:
			c.handleSend(ctx, enqueuer, pdu.ID, body.Message)

		case protocol.SignOut:
			c.reply(pdu.ID, protocol.Ok{})
			logger.Info("User signed out", "user_id", c.userID)
			return

		default:
			logger.Warn("Unexpected request", "user_id", c.userID, "body", fmt.Sprintf("%T", pdu.Body))
			c.reply(pdu.ID, protocol.ErrorResponse{Cause: "unexpected request"})
			return
		}
	}
}

// handleSend validates and forwards one outgoing message. The sender must
// be the signed-in user; broker failures turn into a rejection, not a
// dropped connection.
func (c *Connection) handleSend(ctx context.Context, enqueuer Enqueuer, id protocol.TransactionID, msg protocol.Message) {
	if msg.From != c.userID {
		c.send(protocol.NewPdu(id, protocol.Rejected{ID: msg.ID, Error: "sender does not match signed-in user"}))
		return
	}
	if err := msg.Content.Validate(); err != nil {
		c.send(protocol.NewPdu(id, protocol.Rejected{ID: msg.ID, Error: err.Error()}))
		return
	}

	wire, err := rpc.FromProtocol(&msg)
	if err != nil {
		c.send(protocol.NewPdu(id, protocol.Rejected{ID: msg.ID, Error: err.Error()}))
		return
	}

	result, err := enqueuer.Enqueue(ctx, wire)
	if err != nil || !result.OK {
		cause := "enqueue refused"
		if err != nil {
			cause = err.Error()
		}
		logger.Warn("Failed to enqueue message", "user_id", c.userID, "message_id", msg.ID, "error", cause)
		c.send(protocol.NewPdu(id, protocol.Rejected{ID: msg.ID, Error: cause}))
		return
	}

	c.send(protocol.NewPdu(id, protocol.Queued{ID: msg.ID}))
}

// send queues a pdu for the writer. It reports false when the connection
// is gone.
func (c *Connection) send(pdu *protocol.Pdu) bool {
	select {
	case c.outbound <- pdu:
		return true
	case <-c.closed:
		return false
	}
}

// PushMessage delivers an inbound message to this client. It fails when the
// outbound queue stays full past the context deadline or the connection is
// gone.
func (c *Connection) PushMessage(ctx context.Context, msg *protocol.Message) error {
	pdu := protocol.NewPdu(c.idGen.Next(), protocol.Push{Message: *msg})
	select {
	case c.outbound <- pdu:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	case <-ctx.Done():
		return fmt.Errorf("push to user %s: %w", c.userID, ctx.Err())
	}
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
