// Package config loads service configuration from YAML files and the
// environment.
//
// Every binary takes the same two flags: -c names a configuration file and
// may repeat, -r names a root directory the files are resolved against.
// When several files define the same key the earliest file wins. The
// environment overrides all files; variables use the JINSHU_ prefix with
// "__" between path segments, so JINSHU__COMET__SERVER__PORT sets
// comet.server.port.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Options selects the configuration sources.
type Options struct {
	// Files are the configuration files in priority order: the first file
	// wins on conflicting keys.
	Files []string

	// Root, when set, is the directory relative file paths are resolved
	// against.
	Root string
}

// Load reads the configured files plus the environment into out, applies
// decode hooks for durations and secrets, and validates the result.
func Load(opts Options, out any) error {
	if len(opts.Files) == 0 {
		return fmt.Errorf("no configuration file given; use '-c' to name at least one")
	}

	v := viper.New()
	v.SetEnvPrefix("JINSHU_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	// Merge back to front so that the first file has the last word.
	for i := len(opts.Files) - 1; i >= 0; i-- {
		path := opts.Files[i]
		if opts.Root != "" && !filepath.IsAbs(path) {
			path = filepath.Join(opts.Root, path)
		}
		if err := mergeFile(v, path); err != nil {
			return err
		}
	}

	if err := v.Unmarshal(out, viper.DecodeHook(decodeHooks())); err != nil {
		return fmt.Errorf("unmarshal configuration: %w", err)
	}
	return Validate(out)
}

func mergeFile(v *viper.Viper, path string) error {
	sub := viper.New()
	sub.SetConfigFile(path)
	if err := sub.ReadInConfig(); err != nil {
		return fmt.Errorf("read configuration file %s: %w", path, err)
	}
	if err := v.MergeConfigMap(sub.AllSettings()); err != nil {
		return fmt.Errorf("merge configuration file %s: %w", path, err)
	}
	return nil
}

// Validate checks `validate` struct tags on out.
func Validate(out any) error {
	err := validator.New().Struct(out)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate configuration: %w", err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		details = append(details, fmt.Sprintf("%s: failed %q", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(details, "; "))
}

// Save writes cfg to path as YAML with owner-only permissions.
func Save(cfg any, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create configuration directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write configuration file: %w", err)
	}
	return nil
}

// decodeHooks converts strings to durations and to secret values while
// unmarshaling.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// durationDecodeHook accepts "30s"-style strings and raw numbers
// (nanoseconds) for time.Duration fields.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return time.ParseDuration(value)
		case int:
			return time.Duration(value), nil
		case int64:
			return time.Duration(value), nil
		case float64:
			return time.Duration(value), nil
		default:
			return data, nil
		}
	}
}
