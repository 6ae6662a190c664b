package registry

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Memory is an in-process Registry used in tests and by the single-node
// development mode. It applies the same key scheme as the etcd backend.
type Memory struct {
	namespace string

	mu       sync.Mutex
	services map[string]map[string]*url.URL
	watchers map[string][]*memoryWatcher
}

// NewMemory builds an empty in-process registry.
func NewMemory(namespace string) *Memory {
	return &Memory{
		namespace: namespace,
		services:  make(map[string]map[string]*url.URL),
		watchers:  make(map[string][]*memoryWatcher),
	}
}

// Key returns the full registry key of one instance.
func (m *Memory) Key(service string, uri *url.URL) string {
	return fmt.Sprintf("%s.%s.%s", m.namespace, service, uri)
}

func (m *Memory) Register(_ context.Context, service string, uri *url.URL) (*Keeper, error) {
	key := m.Key(service, uri)

	m.mu.Lock()
	if m.services[service] == nil {
		m.services[service] = make(map[string]*url.URL)
	}
	m.services[service][key] = uri
	m.notify(service, Change{Kind: ChangeCreate, Key: key, URI: uri})
	m.mu.Unlock()

	return NewKeeper(func(stop <-chan struct{}) error {
		<-stop
		m.mu.Lock()
		delete(m.services[service], key)
		m.notify(service, Change{Kind: ChangeDelete, Key: key})
		m.mu.Unlock()
		return nil
	}), nil
}

func (m *Memory) Discover(_ context.Context, service string) (map[string]*url.URL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoints := make(map[string]*url.URL, len(m.services[service]))
	for key, uri := range m.services[service] {
		endpoints[key] = uri
	}
	return endpoints, nil
}

func (m *Memory) Watch(_ context.Context, service string) (Watcher, error) {
	w := &memoryWatcher{
		registry: m,
		service:  service,
		changes:  make(chan Change, 16),
	}
	m.mu.Lock()
	m.watchers[service] = append(m.watchers[service], w)
	m.mu.Unlock()
	return w, nil
}

// notify is called with m.mu held.
func (m *Memory) notify(service string, change Change) {
	for _, w := range m.watchers[service] {
		select {
		case w.changes <- change:
		default:
		}
	}
}

type memoryWatcher struct {
	registry *Memory
	service  string
	changes  chan Change
	once     sync.Once
}

func (w *memoryWatcher) Changes() <-chan Change {
	return w.changes
}

func (w *memoryWatcher) Close() error {
	w.once.Do(func() {
		m := w.registry
		m.mu.Lock()
		watchers := m.watchers[w.service]
		for i, candidate := range watchers {
			if candidate == w {
				m.watchers[w.service] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(w.changes)
	})
	return nil
}
