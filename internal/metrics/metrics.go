// Package metrics exposes Prometheus counters for the messaging pipeline
// and serves them over HTTP. When disabled, every record function is a
// no-op with zero overhead.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// Config configures the metrics endpoint.
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port serving /metrics.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// DefaultConfig disables metrics; deployments opt in.
func DefaultConfig() Config {
	return Config{Enabled: false, Port: 9090}
}

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry

	connections    prometheus.Gauge
	pdusTotal      *prometheus.CounterVec
	enqueuedTotal  *prometheus.CounterVec
	pushedTotal    *prometheus.CounterVec
	pushDuration   prometheus.Histogram
	deadLetters    prometheus.Counter
	signInAttempts *prometheus.CounterVec
)

// Init builds the registry and all collectors. Calling it again resets the
// collectors, which only matters in tests.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	enabled = cfg.Enabled
	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	connections = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "jinshu_comet_connections",
		Help: "Number of live client connections on this ingress node",
	})
	pdusTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "jinshu_comet_pdus_total",
		Help: "PDUs exchanged with clients by direction",
	}, []string{"direction"}) // "in", "out"
	enqueuedTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "jinshu_receiver_enqueued_total",
		Help: "Messages offered to the broker by outcome",
	}, []string{"result"}) // "ok", "error"
	pushedTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "jinshu_pusher_pushed_total",
		Help: "Dispatch attempts by outcome",
	}, []string{"result"}) // "ok", "offline", "failed"
	pushDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "jinshu_pusher_push_duration_milliseconds",
		Help:    "Latency of Comet.Push calls in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})
	deadLetters = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "jinshu_pusher_dead_letters_total",
		Help: "Messages diverted to the dead letter store",
	})
	signInAttempts = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "jinshu_authorizer_sign_in_total",
		Help: "Credential checks by outcome",
	}, []string{"result"}) // "ok", "rejected", "error"
}

// IsEnabled reports whether Init was called with metrics enabled.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func ConnectionOpened() {
	if enabled {
		connections.Inc()
	}
}

func ConnectionClosed() {
	if enabled {
		connections.Dec()
	}
}

func PduReceived() {
	if enabled {
		pdusTotal.WithLabelValues("in").Inc()
	}
}

func PduSent() {
	if enabled {
		pdusTotal.WithLabelValues("out").Inc()
	}
}

func MessageEnqueued(result string) {
	if enabled {
		enqueuedTotal.WithLabelValues(result).Inc()
	}
}

func MessagePushed(result string, duration time.Duration) {
	if enabled {
		pushedTotal.WithLabelValues(result).Inc()
		pushDuration.Observe(float64(duration.Milliseconds()))
	}
}

func DeadLetterStored() {
	if enabled {
		deadLetters.Inc()
	}
}

func SignInChecked(result string) {
	if enabled {
		signInAttempts.WithLabelValues(result).Inc()
	}
}

// Handler returns the /metrics handler for the current registry.
func Handler() http.Handler {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics HTTP server until ctx is cancelled. It returns
// immediately when metrics are disabled.
func Serve(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("Metrics server listening", "port", cfg.Port)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
