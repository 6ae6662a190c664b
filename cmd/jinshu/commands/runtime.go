package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinshu-im/jinshu/internal/logger"
	"github.com/jinshu-im/jinshu/internal/metrics"
	"github.com/jinshu-im/jinshu/internal/telemetry"
	"github.com/jinshu-im/jinshu/pkg/config"
)

// commonConf carries the sections every service shares: logging, telemetry
// and the metrics endpoint. Service configuration structs embed it with
// squash so the keys stay top-level in the file.
type commonConf struct {
	Logging   logger.Config  `mapstructure:"logging"`
	Telemetry telemetryConf  `mapstructure:"telemetry"`
	Metrics   metrics.Config `mapstructure:"metrics"`
}

type telemetryConf struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	Insecure   bool          `mapstructure:"insecure"`
	SampleRate float64       `mapstructure:"sample_rate"`
	Profiling  profilingConf `mapstructure:"profiling"`
}

type profilingConf struct {
	Enabled      bool     `mapstructure:"enabled"`
	Endpoint     string   `mapstructure:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types"`
}

func defaultCommon() commonConf {
	return commonConf{
		Logging: logger.Config{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: telemetryConf{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
			Profiling: profilingConf{
				Endpoint: "http://localhost:4040",
			},
		},
		Metrics: metrics.DefaultConfig(),
	}
}

// loadConf reads the files named by the global -c/-r flags into out.
func loadConf(out any) error {
	return config.Load(config.Options{Files: cfgFiles, Root: cfgRoot}, out)
}

// runService initializes the ambient stack, runs fn until it returns or a
// shutdown signal arrives, and tears everything down in order.
func runService(name string, common commonConf, fn func(ctx context.Context) error) error {
	if err := logger.Init(common.Logging); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        common.Telemetry.Enabled,
		ServiceName:    fmt.Sprintf("jinshu-%s", name),
		ServiceVersion: Version,
		Endpoint:       common.Telemetry.Endpoint,
		Insecure:       common.Telemetry.Insecure,
		SampleRate:     common.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        common.Telemetry.Profiling.Enabled,
		ServiceName:    fmt.Sprintf("jinshu-%s", name),
		ServiceVersion: Version,
		Endpoint:       common.Telemetry.Profiling.Endpoint,
		ProfileTypes:   common.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", "error", err)
		}
	}()

	metrics.Init(common.Metrics)
	go func() {
		if err := metrics.Serve(ctx, common.Metrics); err != nil {
			logger.Error("Metrics server error", "error", err)
		}
	}()

	logger.Info("Service starting", "service", name, "version", Version)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- fn(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown", "service", name)
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Service shutdown error", "service", name, "error", err)
			return err
		}
		logger.Info("Service stopped gracefully", "service", name)

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Service error", "service", name, "error", err)
			return err
		}
		logger.Info("Service stopped", "service", name)
	}

	return nil
}
