package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// Serve runs the gateway HTTP server until ctx is cancelled, then drains
// in-flight requests for up to five seconds.
func Serve(ctx context.Context, cfg Config, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.IP, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("Gateway listening", "address", server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
