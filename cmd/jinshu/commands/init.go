package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jinshu-im/jinshu/pkg/config"
)

var (
	initOutput string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file with every section at its default
value. All services read the same file; each one picks the sections it needs.

Examples:
  # Write the sample to the default location
  jinshu init

  # Write the sample somewhere else
  jinshu init --output /etc/jinshu/jinshu.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "jinshu.yaml", "path of the generated file")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("%s already exists; use --force to overwrite", initOutput)
		}
	}

	if err := config.Save(sampleConfig(), initOutput); err != nil {
		return err
	}
	fmt.Printf("Sample configuration written to %s\n", initOutput)
	return nil
}

// sampleConfig lays out every configuration section with its default value.
// Keys are spelled the way Load expects them, so the generated file round
// trips through any service.
func sampleConfig() map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level":  "INFO",
			"format": "text",
			"output": "stdout",
		},
		"telemetry": map[string]any{
			"enabled":     false,
			"endpoint":    "localhost:4317",
			"insecure":    true,
			"sample_rate": 1.0,
			"profiling": map[string]any{
				"enabled":  false,
				"endpoint": "http://localhost:4040",
			},
		},
		"metrics": map[string]any{
			"enabled": false,
			"port":    9090,
		},
		"etcd": map[string]any{
			"namespace": "jinshu",
			"endpoints": "localhost:2379",
			"ttl":       "10s",
		},
		"redis": map[string]any{
			"host":            "localhost",
			"port":            6379,
			"db_number":       0,
			"max_connections": 16,
		},
		"queue": map[string]any{
			"kind": "kafka",
			"kafka": map[string]any{
				"servers": "localhost:9092",
				"topic":   "jinshu.dev",
				"producer": map[string]any{
					"message_timeout": "3s",
				},
				"consumer": map[string]any{
					"group_id":          "jinshu.group",
					"auto_offset_reset": "earliest",
					"session_timeout":   "5m",
					"auto_commit":       false,
				},
			},
			"pulsar": map[string]any{
				"url":   "pulsar://localhost:6650",
				"topic": "persistent://public/default/jinshu.dev",
				"consumer": map[string]any{
					"subscription_name": "jinshu",
					"subscription_type": "keyshared",
				},
			},
		},
		"comet": map[string]any{
			"ip":                "0.0.0.0",
			"port":              9000,
			"codec":             "json",
			"max_connections":   0,
			"handshake_timeout": "10s",
			"shutdown_timeout":  "30s",
			"service": map[string]any{
				"service_name": "comet",
				"public_host":  "0.0.0.0",
				"listen_ip":    "0.0.0.0",
				"listen_port":  9400,
			},
			"receiver_name":   "receiver",
			"authorizer_name": "authorizer",
		},
		"receiver": map[string]any{
			"service": map[string]any{
				"service_name": "receiver",
				"public_host":  "0.0.0.0",
				"listen_ip":    "0.0.0.0",
				"listen_port":  9100,
			},
		},
		"authorizer": map[string]any{
			"service": map[string]any{
				"service_name": "authorizer",
				"public_host":  "0.0.0.0",
				"listen_ip":    "0.0.0.0",
				"listen_port":  9200,
			},
		},
		"pusher": map[string]any{
			"comet_name": "comet",
			"dead_letter": map[string]any{
				"enabled": false,
				"path":    "",
			},
		},
		"gateway": map[string]any{
			"ip":   "0.0.0.0",
			"port": 9300,
			"database": map[string]any{
				"type": "sqlite",
				"sqlite": map[string]any{
					"path": "jinshu.db",
				},
			},
		},
		"storage": map[string]any{
			"database": map[string]any{
				"type": "sqlite",
				"sqlite": map[string]any{
					"path": "jinshu.db",
				},
			},
		},
	}
}
