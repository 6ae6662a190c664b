package session

import "github.com/jinshu-im/jinshu/pkg/secret"

// Config locates the Redis instance backing the session directory and the
// sign-in cache.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"min=0,max=65535"`
	Password       secret.Secret `mapstructure:"password"`
	DBNumber       int           `mapstructure:"db_number" validate:"min=0"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=0"`
}

// DefaultConfig points at a local Redis.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6379,
		DBNumber:       0,
		MaxConnections: 16,
	}
}
