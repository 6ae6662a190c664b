// Package database opens the relational store shared by the gateway and the
// archive. SQLite serves single-node deployments; PostgreSQL serves
// everything else. Both ride the same gorm models.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jinshu-im/jinshu/pkg/secret"
)

// Type selects the database backend.
type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"
)

// SQLiteConfig locates the database file. ":memory:" keeps it in memory.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig carries the connection parameters of a PostgreSQL server.
type PostgresConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Database     string        `mapstructure:"database"`
	User         string        `mapstructure:"user"`
	Password     secret.Secret `mapstructure:"password"`
	SSLMode      string        `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password.Expose(), c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config selects and configures the backend.
type Config struct {
	Type     Type           `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// DefaultConfig uses a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Type:   TypeSQLite,
		SQLite: SQLiteConfig{Path: "jinshu.db"},
	}
}

func (c *Config) applyDefaults() {
	if c.Type == "" {
		c.Type = TypeSQLite
	}
	if c.Type == TypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "jinshu.db"
	}
	if c.Type == TypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Open connects to the configured backend and migrates the given models.
func Open(cfg Config, models ...any) (*gorm.DB, error) {
	cfg.applyDefaults()

	var dialector gorm.Dialector
	switch cfg.Type {
	case TypeSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." && cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn := cfg.SQLite.Path
		if dsn != ":memory:" {
			// WAL allows concurrent readers with a single writer.
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)

	case TypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Type == TypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return db, nil
}
