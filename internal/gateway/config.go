package gateway

import "github.com/jinshu-im/jinshu/pkg/database"

// Config configures the account gateway.
type Config struct {
	// IP and Port are the HTTP listener address.
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`

	// Database holds the account store.
	Database database.Config `mapstructure:"database"`
}

// DefaultConfig mirrors a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		IP:       "0.0.0.0",
		Port:     9300,
		Database: database.DefaultConfig(),
	}
}
