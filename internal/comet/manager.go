package comet

import (
	"context"

	"sync"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/session"
)

// ConnectionManager tracks the signed-in connections of this node and keeps
// the session directory in step with them.
type ConnectionManager struct {
	// serviceKey is this node's registry key; it is what the directory
	// points other nodes at.
	serviceKey string
	sessions   *session.Store

	mu    sync.RWMutex
	conns map[protocol.UID]*Connection
}

// NewConnectionManager builds a manager publishing serviceKey to the
// session directory.
func NewConnectionManager(serviceKey string, sessions *session.Store) *ConnectionManager {
	return &ConnectionManager{
		serviceKey: serviceKey,
		sessions:   sessions,
		conns:      make(map[protocol.UID]*Connection),
	}
}

// register installs conn as the user's connection. A previous connection of
// the same user is evicted: it gets closed and the new one takes its place
// without notice to either side.
func (m *ConnectionManager) register(ctx context.Context, conn *Connection) error {
	m.mu.Lock()
	previous := m.conns[conn.userID]
	m.conns[conn.userID] = conn
	m.mu.Unlock()

	if previous != nil {
		logger.Info("Evicting previous connection", "user_id", conn.userID)
		previous.shutdown()
	}

	if err := m.sessions.Save(ctx, conn.userID, m.serviceKey); err != nil {
		m.mu.Lock()
		if m.conns[conn.userID] == conn {
			delete(m.conns, conn.userID)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// release removes conn if it is still the user's current connection, and
// then clears the directory entry. A connection replaced by eviction leaves
// the newer registration untouched.
func (m *ConnectionManager) release(ctx context.Context, conn *Connection) {
	m.mu.Lock()
	current := m.conns[conn.userID] == conn
	if current {
		delete(m.conns, conn.userID)
	}
	m.mu.Unlock()

	if !current {
		return
	}
	if err := m.sessions.Remove(ctx, conn.userID); err != nil {
		logger.Warn("Failed to remove session", "user_id", conn.userID, "error", err)
	}
	logger.Info("User connection removed", "user_id", conn.userID)
}

// Get returns the user's live connection, or nil.
func (m *ConnectionManager) Get(userID protocol.UID) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[userID]
}

// Count returns the number of signed-in connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// closeAll shuts down every signed-in connection, used on server shutdown.
func (m *ConnectionManager) closeAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		conn.shutdown()
	}
}
