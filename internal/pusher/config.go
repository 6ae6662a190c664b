package pusher

import "github.com/jinshu-im/jinshu/pkg/queue"

// Config configures a dispatch node.
type Config struct {
	// CometName is the registry name of the ingress service whose nodes
	// this dispatcher pushes to.
	CometName string `mapstructure:"comet_name" validate:"required"`

	// DeadLetter configures the local store for undeliverable messages.
	DeadLetter queue.DeadLetterConfig `mapstructure:"dead_letter"`
}

// DefaultConfig targets the default ingress service name with dead letters
// disabled.
func DefaultConfig() Config {
	return Config{
		CometName: "comet",
	}
}
