package comet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
)

// Server runs the client-facing TCP listener of an ingress node. Each
// accepted connection performs a sign-in handshake and is then served until
// the client disconnects, signs out, or the server shuts down.
//
// Stop is safe to call multiple times and concurrently with Serve.
type Server struct {
	config     Config
	manager    *ConnectionManager
	authorizer Authorizer
	enqueuer   Enqueuer

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once the listener accepts connections. Used by
	// tests to synchronize with startup.
	ListenerReady chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	activeConns sync.WaitGroup
	connCount   atomic.Int32

	// rawConns tracks accepted sockets by remote address so shutdown can
	// interrupt blocking reads and force-close stragglers.
	rawConns sync.Map

	connSemaphore chan struct{}
}

// NewServer builds a server. The manager owns signed-in connection state;
// authorizer and enqueuer are the downstream service clients.
func NewServer(cfg Config, manager *ConnectionManager, authorizer Authorizer, enqueuer Enqueuer) *Server {
	var connSemaphore chan struct{}
	if cfg.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, cfg.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Server{
		config:         cfg,
		manager:        manager,
		authorizer:     authorizer,
		enqueuer:       enqueuer,
		ListenerReady:  make(chan struct{}),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		connSemaphore:  connSemaphore,
	}
}

// Serve runs the accept loop until ctx is cancelled or Stop is called. It
// returns nil on a clean drain and an error when connections had to be
// force-closed.
func (s *Server) Serve(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", s.config.IP, s.config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("Client listener ready", "address", listener.Addr(), "codec", s.config.Codec)

	go func() {
		<-ctx.Done()
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.drain()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.drain()
			default:
				logger.Debug("Error accepting connection", "error", err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", "error", err)
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		s.rawConns.Store(addr, tcpConn)
		metrics.ConnectionOpened()

		logger.Debug("Connection accepted", "address", addr, "active", s.connCount.Load())

		go func(addr string, tcpConn net.Conn) {
			defer func() {
				s.rawConns.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				metrics.ConnectionClosed()
				logger.Debug("Connection closed", "address", addr, "active", s.connCount.Load())
			}()

			s.handle(s.shutdownCtx, tcpConn)
		}(addr, tcpConn)
	}
}

// handle runs one connection from handshake to teardown.
func (s *Server) handle(ctx context.Context, tcpConn net.Conn) {
	conn := newConnection(tcpConn, s.config.Codec)
	defer conn.shutdown()

	txnID, extension, err := conn.handshake(ctx, s.authorizer, s.config.HandshakeTimeout)
	if err != nil {
		logger.Info("Handshake failed", "address", tcpConn.RemoteAddr(), "error", err)
		return
	}

	if err := s.manager.register(ctx, conn); err != nil {
		logger.Error("Failed to register session", "user_id", conn.userID, "error", err)
		return
	}
	defer s.manager.release(context.WithoutCancel(ctx), conn)

	if err := conn.acknowledgeSignIn(txnID, extension); err != nil {
		logger.Warn("Failed to confirm sign-in", "user_id", conn.userID, "error", err)
		return
	}

	conn.serve(ctx, s.enqueuer)
}

// initiateShutdown stops accepting, interrupts blocking reads and cancels
// in-flight request contexts. Idempotent.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		s.rawConns.Range(func(key, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})

		s.cancelRequests()
	})
}

// drain waits for active connections to finish, force-closing them when the
// shutdown timeout passes.
func (s *Server) drain() error {
	active := s.connCount.Load()
	logger.Info("Draining connections", "active", active, "timeout", s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All connections closed")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded, forcing closure", "active", remaining)
		s.manager.closeAll()
		s.rawConns.Range(func(key, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates shutdown and waits for the drain.
func (s *Server) Stop() error {
	s.initiateShutdown()
	return s.drain()
}

// Addr blocks until the listener is ready and returns its address. Useful
// with an ephemeral port.
func (s *Server) Addr() string {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ConnCount returns the number of accepted connections, including those
// still in handshake.
func (s *Server) ConnCount() int32 {
	return s.connCount.Load()
}
