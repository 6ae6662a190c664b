package authorizer

import "github.com/jinshu-im/jinshu/pkg/rpc"

// Config configures a credential check node. The sign-in cache itself is
// configured by the shared redis section.
type Config struct {
	// Service is the node's RPC endpoint.
	Service rpc.ServiceConfig `mapstructure:"service"`
}

// DefaultConfig mirrors a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Service: rpc.ServiceConfig{
			ServiceName: "authorizer",
			PublicHost:  "0.0.0.0",
			ListenIP:    "0.0.0.0",
			ListenPort:  9200,
		},
	}
}
