package comet

import (
	"time"

	"github.com/jinshu-im/jinshu/pkg/protocol"
	"github.com/jinshu-im/jinshu/pkg/rpc"
)

// Config configures an ingress node.
type Config struct {
	// IP and Port are the client-facing TCP listener address.
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`

	// Codec is the frame payload encoding clients must use on this node:
	// json, msgpack or cbor.
	Codec protocol.Codec `mapstructure:"codec"`

	// MaxConnections limits concurrent client connections. 0 is unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// HandshakeTimeout bounds the wait for the sign-in request on a fresh
	// connection.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`

	// ShutdownTimeout bounds the graceful drain of client connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Service is the node's inward-facing push RPC endpoint.
	Service rpc.ServiceConfig `mapstructure:"service"`

	// ReceiverName and AuthorizerName are the registry names of the
	// services this node depends on.
	ReceiverName   string `mapstructure:"receiver_name"`
	AuthorizerName string `mapstructure:"authorizer_name"`
}

// DefaultConfig mirrors a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		IP:               "0.0.0.0",
		Port:             9000,
		Codec:            protocol.CodecJSON,
		HandshakeTimeout: 10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		Service: rpc.ServiceConfig{
			ServiceName: "comet",
			PublicHost:  "0.0.0.0",
			ListenIP:    "0.0.0.0",
			ListenPort:  9400,
		},
		ReceiverName:   "receiver",
		AuthorizerName: "authorizer",
	}
}
