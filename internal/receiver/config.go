package receiver

import "github.com/jinshu-im/jinshu/pkg/rpc"

// Config configures an ingestion node. The broker itself is configured by
// the shared queue section.
type Config struct {
	// Service is the node's RPC endpoint.
	Service rpc.ServiceConfig `mapstructure:"service"`
}

// DefaultConfig mirrors a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Service: rpc.ServiceConfig{
			ServiceName: "receiver",
			PublicHost:  "0.0.0.0",
			ListenIP:    "0.0.0.0",
			ListenPort:  9100,
		},
	}
}
