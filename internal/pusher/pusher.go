// Package pusher implements the dispatch tier. It consumes queued messages
// from the broker, resolves each recipient's ingress node through the
// session directory, and pushes the message over that node's RPC endpoint.
//
// The pusher keeps one client connection per ingress node, keyed by the
// node's registry key, and follows registry membership so nodes joining and
// leaving are picked up without restarts.
package pusher

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
	"github.com/jinshu-im/jinshu/internal/telemetry"
	"github.com/jinshu-im/jinshu/pkg/queue"
	"github.com/jinshu-im/jinshu/pkg/registry"
	"github.com/jinshu-im/jinshu/pkg/rpc"
	"github.com/jinshu-im/jinshu/pkg/session"
)

// Pusher dispatches queued messages to ingress nodes. It implements
// queue.Handler.
type Pusher struct {
	sessions *session.Store

	mu      sync.RWMutex
	clients map[string]*endpoint

	keeper *registry.Keeper

	// deadLetters, when non-nil, captures undeliverable messages after they
	// are acknowledged on the broker.
	deadLetters *queue.DeadLetterStore
}

// endpoint is one ingress node's client connection, keyed by its registry
// key.
type endpoint struct {
	conn   *grpc.ClientConn
	client *rpc.CometClient
}

// New discovers the current ingress nodes of cometName and keeps the client
// set in sync with registry membership until Close.
func New(ctx context.Context, cometName string, reg registry.Registry, sessions *session.Store, deadLetters *queue.DeadLetterStore) (*Pusher, error) {
	endpoints, err := reg.Discover(ctx, cometName)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", cometName, err)
	}
	logger.Info("Endpoints are discovered", "service", cometName, "count", len(endpoints))

	watcher, err := reg.Watch(ctx, cometName)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", cometName, err)
	}

	p := &Pusher{
		sessions:    sessions,
		clients:     make(map[string]*endpoint),
		deadLetters: deadLetters,
	}
	for key, uri := range endpoints {
		if err := p.connect(key, uri); err != nil {
			logger.Warn("Failed to connect to endpoint", "key", key, "uri", uri, "error", err)
		}
	}

	p.keeper = registry.NewKeeper(func(stop <-chan struct{}) error {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return nil
			case change, ok := <-watcher.Changes():
				if !ok {
					return nil
				}
				logger.Info("Service set has changed", "kind", change.Kind, "key", change.Key)
				switch change.Kind {
				case registry.ChangeCreate:
					if err := p.connect(change.Key, change.URI); err != nil {
						logger.Error("Failed to connect to endpoint", "key", change.Key, "error", err)
					}
				case registry.ChangeDelete:
					p.disconnect(change.Key)
				}
			}
		}
	})
	return p, nil
}

// connect dials an ingress node and installs its client. An existing client
// under the same key is replaced and its connection closed.
func (p *Pusher) connect(key string, uri *url.URL) error {
	conn, err := grpc.NewClient(uri.Host, rpc.DialOptions()...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", uri, err)
	}

	p.mu.Lock()
	previous := p.clients[key]
	p.clients[key] = &endpoint{conn: conn, client: rpc.NewCometClient(conn)}
	p.mu.Unlock()

	if previous != nil {
		_ = previous.conn.Close()
	}
	return nil
}

func (p *Pusher) disconnect(key string) {
	p.mu.Lock()
	ep := p.clients[key]
	delete(p.clients, key)
	p.mu.Unlock()

	if ep != nil {
		_ = ep.conn.Close()
	}
}

func (p *Pusher) lookup(key string) *endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[key]
}

// Handle implements queue.Handler. Undeliverable messages are acknowledged
// and reported as failures so one offline recipient never stalls the
// stream; broker-level problems surface through the consumer, not here.
func (p *Pusher) Handle(ctx context.Context, topic string, msg *queue.QueuedMessage) queue.HandleResult {
	logger.Debug("Push message", "topic", topic)

	ctx, span := telemetry.StartSpan(ctx, "pusher.Handle")
	defer span.End()
	span.SetAttributes(telemetry.Topic(topic))

	start := time.Now()
	if err := p.push(ctx, &msg.Message); err != nil {
		telemetry.RecordError(ctx, err)
		span.SetAttributes(telemetry.Outcome(pushOutcome(err)))
		metrics.MessagePushed(pushOutcome(err), time.Since(start))
		p.divert(msg)
		return queue.Failure("%s", err)
	}
	span.SetAttributes(telemetry.Outcome("ok"))
	metrics.MessagePushed("ok", time.Since(start))
	return queue.Ok()
}

// push resolves the recipient's ingress node and delivers the message to it.
func (p *Pusher) push(ctx context.Context, msg *rpc.Message) error {
	userID, err := msg.Recipient()
	if err != nil {
		return fmt.Errorf("message recipient: %w", err)
	}

	key, ok, err := p.sessions.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session of %s: %w", userID, err)
	}
	if !ok {
		logger.Info("User is offline", "user_id", userID)
		return &offlineError{reason: fmt.Sprintf("user %s is offline", userID)}
	}

	ep := p.lookup(key)
	if ep == nil {
		logger.Info("Endpoint is offline", "key", key)
		return &offlineError{reason: fmt.Sprintf("endpoint %s is offline", key)}
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(telemetry.Endpoint(key), telemetry.UserID(userID.String()))
	}

	if _, err := ep.client.Push(ctx, msg); err != nil {
		return fmt.Errorf("push to %s: %w", key, err)
	}
	return nil
}

// divert stores an undeliverable message for later inspection.
func (p *Pusher) divert(msg *queue.QueuedMessage) {
	if p.deadLetters == nil {
		return
	}
	if err := p.deadLetters.Put(msg); err != nil {
		logger.Error("Failed to store dead letter", "error", err)
		return
	}
	metrics.DeadLetterStored()
}

// Close stops following registry membership and closes every client
// connection.
func (p *Pusher) Close() error {
	var err error
	if p.keeper != nil {
		err = p.keeper.Close()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, ep := range p.clients {
		_ = ep.conn.Close()
		delete(p.clients, key)
	}
	return err
}

// offlineError marks a delivery failure caused by an absent recipient
// rather than a transport problem.
type offlineError struct {
	reason string
}

func (e *offlineError) Error() string { return e.reason }

func pushOutcome(err error) string {
	if _, ok := err.(*offlineError); ok {
		return "offline"
	}
	return "failed"
}
