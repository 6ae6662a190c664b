// Package registry publishes service endpoints to etcd and discovers peers
// from it. Every instance registers under <namespace>.<service>.<uri> with a
// leased key that disappears when the instance stops renewing it, so the
// live set of a service is exactly the set of keys under its prefix.
package registry

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jinshu-im/jinshu/pkg/secret"
)

// ChangeKind discriminates watch events.
type ChangeKind uint8

const (
	// ChangeCreate reports a new or updated endpoint.
	ChangeCreate ChangeKind = iota
	// ChangeDelete reports a removed endpoint.
	ChangeDelete
)

// Change is one membership event of a watched service.
type Change struct {
	Kind ChangeKind
	Key  string

	// URI is set for ChangeCreate only.
	URI *url.URL
}

// Watcher streams membership changes of one service until cancelled.
type Watcher interface {
	// Changes returns the event stream. The channel closes when the watch
	// ends, whether by Close or by a backend failure.
	Changes() <-chan Change

	Close() error
}

// Registry publishes and discovers service endpoints.
type Registry interface {
	// Register announces uri under the service name and returns a Keeper
	// that renews the entry until closed. Closing the Keeper removes it.
	Register(ctx context.Context, service string, uri *url.URL) (*Keeper, error)

	// Discover returns the current endpoints of a service, keyed by their
	// full registry key. Entries with unparseable URIs are skipped.
	Discover(ctx context.Context, service string) (map[string]*url.URL, error)

	// Watch streams membership changes of a service.
	Watch(ctx context.Context, service string) (Watcher, error)
}

// Keeper owns a background task tied to a registration. Close stops the
// task, waits for its cleanup, and returns its error.
type Keeper struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

// NewKeeper starts run in a goroutine and hands back its handle. run must
// return promptly once stop closes.
func NewKeeper(run func(stop <-chan struct{}) error) *Keeper {
	k := &Keeper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(k.done)
		k.err = run(k.stop)
	}()
	return k
}

// Close stops the background task and waits for it to finish.
func (k *Keeper) Close() error {
	k.once.Do(func() { close(k.stop) })
	<-k.done
	return k.err
}

// Done is closed when the background task has finished, whether by Close or
// on its own after a failure.
func (k *Keeper) Done() <-chan struct{} {
	return k.done
}

// Err returns the task error. Only valid after Done is closed.
func (k *Keeper) Err() error {
	return k.err
}

// Config locates the etcd cluster and names the registry namespace.
type Config struct {
	Namespace string `mapstructure:"namespace"`

	// Endpoints is the comma-separated etcd endpoint list.
	Endpoints string `mapstructure:"endpoints"`

	Username string        `mapstructure:"username"`
	Password secret.Secret `mapstructure:"password"`

	// TTL is the registration lease duration. The lease is renewed at half
	// this interval; an instance that dies disappears within TTL.
	TTL time.Duration `mapstructure:"ttl"`

	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	KeepAliveTimeout  time.Duration `mapstructure:"keep_alive_timeout"`
}

// DefaultConfig points at a local etcd with a 10 second lease.
func DefaultConfig() Config {
	return Config{
		Namespace: "jinshu",
		Endpoints: "localhost:2379",
		TTL:       10 * time.Second,
	}
}
