package storage

import "github.com/jinshu-im/jinshu/pkg/database"

// Config configures the archive service. The broker is configured by the
// shared queue section.
type Config struct {
	// Database holds the archive rows.
	Database database.Config `mapstructure:"database"`
}

// DefaultConfig uses the default local database.
func DefaultConfig() Config {
	return Config{Database: database.DefaultConfig()}
}
