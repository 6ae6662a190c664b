package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// Etcd implements Registry on an etcd cluster.
type Etcd struct {
	client    *clientv3.Client
	namespace string
	ttl       time.Duration
}

// NewEtcd connects to the configured cluster.
func NewEtcd(cfg Config) (*Etcd, error) {
	clientCfg := clientv3.Config{
		Endpoints:            strings.Split(cfg.Endpoints, ","),
		Username:             cfg.Username,
		Password:             cfg.Password.Expose(),
		DialTimeout:          5 * time.Second,
		DialKeepAliveTime:    cfg.KeepAliveInterval,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
	}
	client, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to etcd %s: %w", cfg.Endpoints, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Etcd{client: client, namespace: cfg.Namespace, ttl: ttl}, nil
}

// KeyPrefix returns the common prefix of all instances of a service.
func (e *Etcd) KeyPrefix(service string) string {
	return fmt.Sprintf("%s.%s.", e.namespace, service)
}

// Key returns the full registry key of one instance.
func (e *Etcd) Key(service string, uri *url.URL) string {
	return e.KeyPrefix(service) + uri.String()
}

func (e *Etcd) Register(ctx context.Context, service string, uri *url.URL) (*Keeper, error) {
	key := e.Key(service, uri)

	grant, err := e.client.Grant(ctx, int64(e.ttl.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("grant lease for %s: %w", key, err)
	}
	if _, err := e.client.Put(ctx, key, uri.String(), clientv3.WithLease(grant.ID)); err != nil {
		return nil, fmt.Errorf("register %s: %w", key, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	renewals, err := e.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("keep lease alive for %s: %w", key, err)
	}

	logger.Info("Service is registered", "service", service, "uri", uri)

	keeper := NewKeeper(func(stop <-chan struct{}) error {
		defer cancel()
		for {
			select {
			case <-stop:
				return e.unregister(key, grant.ID, service)
			case resp, ok := <-renewals:
				if !ok {
					return fmt.Errorf("lease renewal stream closed for %s", key)
				}
				logger.Debug("Lease renewed", "lease", resp.ID, "ttl", resp.TTL)
			}
		}
	})
	return keeper, nil
}

func (e *Etcd) unregister(key string, lease clientv3.LeaseID, service string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := e.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("unregister %s: %w", key, err)
	}
	if _, err := e.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("revoke lease for %s: %w", key, err)
	}
	logger.Info("Service is unregistered", "service", service, "key", key)
	return nil
}

func (e *Etcd) Discover(ctx context.Context, service string) (map[string]*url.URL, error) {
	prefix := e.KeyPrefix(service)

	resp, err := e.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}

	endpoints := make(map[string]*url.URL, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key, value := string(kv.Key), string(kv.Value)
		uri, err := url.Parse(value)
		if err != nil || uri.Host == "" {
			logger.Warn("Value is an invalid uri", "key", key, "value", value)
			continue
		}
		endpoints[key] = uri
	}
	return endpoints, nil
}

func (e *Etcd) Watch(ctx context.Context, service string) (Watcher, error) {
	prefix := e.KeyPrefix(service)

	watchCtx, cancel := context.WithCancel(context.Background())
	events := e.client.Watch(watchCtx, prefix, clientv3.WithPrefix())

	w := &etcdWatcher{
		changes: make(chan Change, 16),
		cancel:  cancel,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run(events)
	return w, nil
}

type etcdWatcher struct {
	changes chan Change
	cancel  context.CancelFunc
	stop    sync.Once
	stopped chan struct{}
	done    chan struct{}
}

func (w *etcdWatcher) run(events clientv3.WatchChan) {
	defer close(w.done)
	defer close(w.changes)

	for resp := range events {
		if err := resp.Err(); err != nil {
			logger.Warn("Registry watch failed", "error", err)
			return
		}
		for _, event := range resp.Events {
			change, ok := translateEvent(event)
			if !ok {
				continue
			}
			logger.Info("Service set is changed", "key", change.Key, "kind", change.Kind)
			// The consumer may already be gone when Close is called; never
			// park on a full buffer past that point.
			select {
			case w.changes <- change:
			case <-w.stopped:
				return
			}
		}
	}
}

func translateEvent(event *clientv3.Event) (Change, bool) {
	key := string(event.Kv.Key)
	switch {
	case event.Type == clientv3.EventTypePut:
		value := string(event.Kv.Value)
		uri, err := url.Parse(value)
		if err != nil || uri.Host == "" {
			logger.Warn("Value is an invalid uri", "key", key, "value", value)
			return Change{}, false
		}
		return Change{Kind: ChangeCreate, Key: key, URI: uri}, true
	case event.Type == clientv3.EventTypeDelete:
		return Change{Kind: ChangeDelete, Key: key}, true
	default:
		return Change{}, false
	}
}

func (w *etcdWatcher) Changes() <-chan Change {
	return w.changes
}

func (w *etcdWatcher) Close() error {
	w.stop.Do(func() { close(w.stopped) })
	w.cancel()
	<-w.done
	return nil
}

// Close releases the etcd client.
func (e *Etcd) Close() error {
	return e.client.Close()
}
