// Package sdk is the client library for the messaging wire protocol. It
// dials an ingress node, performs the sign-in handshake, and exchanges
// frames on the caller's behalf: requests are correlated with their
// responses by transaction id while pushed messages surface on a channel.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jinshu-im/jinshu/pkg/protocol"
)

// receiveCapacity bounds the buffered push channel. The reader stops
// draining the socket when the application falls this far behind.
const receiveCapacity = 32

// ErrInvalidToken reports a rejected sign-in credential.
var ErrInvalidToken = errors.New("invalid token")

// ErrClosed reports an operation on a closed client.
var ErrClosed = errors.New("client closed")

// RejectedError reports a message the server refused to queue.
type RejectedError struct {
	ID     protocol.UID
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("message %s rejected: %s", e.ID, e.Reason)
}

// ServerError reports a terminal error response from the server.
type ServerError struct {
	Cause string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Cause)
}

// Config configures a client.
type Config struct {
	// Address is the host:port of the ingress node.
	Address string `mapstructure:"address"`

	// Codec is the frame payload encoding: json, msgpack or cbor. Must
	// match the node's configured codec.
	Codec protocol.Codec `mapstructure:"codec"`

	// Timeout bounds Dial and each request round trip. Zero means 5 s.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client is one connection to an ingress node. Safe for concurrent use;
// requests from multiple goroutines interleave on the same connection.
type Client struct {
	conn    net.Conn
	enc     *protocol.Encoder
	gen     *protocol.TransactionIDGenerator
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[protocol.TransactionID]chan *protocol.Pdu

	pushes chan protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
	readErr   error
}

// Dial connects to the ingress node. The caller must SignIn before any
// other request.
func Dial(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("tcp", cfg.Address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	c := &Client{
		conn:    conn,
		enc:     protocol.NewEncoder(cfg.Codec),
		gen:     protocol.NewTransactionIDGenerator(),
		timeout: timeout,
		pending: make(map[protocol.TransactionID]chan *protocol.Pdu),
		pushes:  make(chan protocol.Message, receiveCapacity),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop dispatches inbound frames: pushes to the receive channel,
// responses to their waiting request. It owns the push channel and closes
// it on exit.
func (c *Client) readLoop() {
	defer close(c.pushes)

	dec := protocol.NewStreamDecoder(c.conn)
	for {
		pdu, err := dec.Next()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			c.close()
			return
		}

		if push, ok := pdu.Body.(protocol.Push); ok {
			select {
			case c.pushes <- push.Message:
			case <-c.closed:
				return
			}
			continue
		}

		c.mu.Lock()
		waiter := c.pending[pdu.ID]
		delete(c.pending, pdu.ID)
		c.mu.Unlock()
		if waiter != nil {
			waiter <- pdu
		}
	}
}

// roundTrip sends one request and waits for its response.
func (c *Client) roundTrip(ctx context.Context, body protocol.Body) (*protocol.Pdu, error) {
	select {
	case <-c.closed:
		return nil, c.closedErr()
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := c.gen.Next()
	waiter := make(chan *protocol.Pdu, 1)
	c.mu.Lock()
	c.pending[id] = waiter
	c.mu.Unlock()

	c.writeMu.Lock()
	err := protocol.WritePdu(c.conn, c.enc, protocol.NewPdu(id, body))
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case pdu := <-waiter:
		return pdu, nil
	case <-c.closed:
		return nil, c.closedErr()
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// SignIn authenticates the connection and returns the extension document
// issued at sign-in, if any. It must be the first request.
func (c *Client) SignIn(ctx context.Context, userID, token protocol.UID) (*string, error) {
	pdu, err := c.roundTrip(ctx, protocol.SignIn{UserID: userID, Token: token})
	if err != nil {
		return nil, err
	}
	switch body := pdu.Body.(type) {
	case protocol.SignedIn:
		return body.Extension, nil
	case protocol.InvalidToken:
		return nil, ErrInvalidToken
	case protocol.ErrorResponse:
		return nil, &ServerError{Cause: body.Cause}
	default:
		return nil, fmt.Errorf("unexpected sign-in response %T", pdu.Body)
	}
}

// Send submits a message and waits for the queue acknowledgement. A
// rejection comes back as *RejectedError.
func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	pdu, err := c.roundTrip(ctx, protocol.Send{Message: msg})
	if err != nil {
		return err
	}
	switch body := pdu.Body.(type) {
	case protocol.Queued:
		return nil
	case protocol.Rejected:
		return &RejectedError{ID: body.ID, Reason: body.Error}
	case protocol.ErrorResponse:
		return &ServerError{Cause: body.Cause}
	default:
		return fmt.Errorf("unexpected send response %T", pdu.Body)
	}
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	pdu, err := c.roundTrip(ctx, protocol.Ping{})
	if err != nil {
		return err
	}
	if _, ok := pdu.Body.(protocol.Pong); !ok {
		return fmt.Errorf("unexpected ping response %T", pdu.Body)
	}
	return nil
}

// SignOut ends the session. The server closes the connection afterwards.
func (c *Client) SignOut(ctx context.Context) error {
	pdu, err := c.roundTrip(ctx, protocol.SignOut{})
	if err != nil {
		return err
	}
	if _, ok := pdu.Body.(protocol.Ok); !ok {
		return fmt.Errorf("unexpected sign-out response %T", pdu.Body)
	}
	return nil
}

// Receive returns the channel of messages pushed by the server. The channel
// closes when the connection does.
func (c *Client) Receive() <-chan protocol.Message {
	return c.pushes
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.close()
	return nil
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %s", ErrClosed, c.readErr)
	}
	return ErrClosed
}
