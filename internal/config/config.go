// Package config loads timeblock settings from a YAML or JSON file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

const (
	// DefaultGateBudget bounds a whole acceptance-gate run.
	DefaultGateBudget = 30 * time.Second
	// MaxHorizonDays caps how far ahead a schedule run looks.
	MaxHorizonDays = 366
)

// Config is the on-disk configuration.
type Config struct {
	DBPath        string        `json:"db_path,omitempty"`
	LogLevel      string        `json:"log_level,omitempty"`
	LogFormat     string        `json:"log_format,omitempty"`
	User          string        `json:"user,omitempty"`
	HorizonDays   int           `json:"horizon_days,omitempty"`
	DefaultPolicy *model.Policy `json:"default_policy,omitempty"`
	Gate          GateConfig    `json:"gate"`
}

// GateConfig controls the acceptance gate.
type GateConfig struct {
	Output     string `json:"output,omitempty"`
	Budget     string `json:"budget,omitempty"`
	Sequential bool   `json:"sequential,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DBPath:      defaultDBPath(),
		LogLevel:    "info",
		LogFormat:   "console",
		User:        "default",
		HorizonDays: 7,
		Gate: GateConfig{
			Output: "gate-result.json",
			Budget: DefaultGateBudget.String(),
		},
	}
}

func defaultDBPath() string {
	if env := os.Getenv("TIMEBLOCK_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".timeblock", "timeblock.db")
}

// DefaultPath is where the config file lives when neither a flag nor
// $TIMEBLOCK_CONFIG names one.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".timeblock", "config.yaml")
}

// Path resolves the config file location. explicit reports whether the
// caller named it, in which case a missing file is an error.
func Path(flag string) (path string, explicit bool) {
	if flag != "" {
		return flag, true
	}
	if env := os.Getenv("TIMEBLOCK_CONFIG"); env != "" {
		return env, true
	}
	return DefaultPath(), false
}

// Load reads the config at path. A missing file yields defaults unless
// mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !mustExist {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults. path selects the format by
// extension. Unknown fields and trailing data are rejected.
func Parse(path string, data []byte) (*Config, error) {
	cfg := Default()
	if err := decodeStrict(path, data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.Gate.Output = expandHome(cfg.Gate.Output)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeFile strictly decodes a YAML or JSON file into v.
func DecodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := decodeStrict(path, data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func decodeStrict(path string, data []byte, v any) error {
	b, err := coerceToJSONBytes(path, data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data")
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path: is required")
	}
	if c.HorizonDays < 1 || c.HorizonDays > MaxHorizonDays {
		return fmt.Errorf("horizon_days: must be between 1 and %d", MaxHorizonDays)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	if _, err := ParseDurationField("gate.budget", c.Gate.Budget); err != nil {
		return err
	}
	if c.DefaultPolicy != nil {
		if err := c.DefaultPolicy.Validate(); err != nil {
			return fmt.Errorf("default_policy: %w", err)
		}
	}
	return nil
}

// GateBudget is the parsed gate budget, DefaultGateBudget when unset.
func (c *Config) GateBudget() time.Duration {
	d, err := ParseDurationOrDefault("gate.budget", c.Gate.Budget, DefaultGateBudget)
	if err != nil {
		return DefaultGateBudget
	}
	return d
}

// Policy returns the configured default policy or model.DefaultPolicy.
func (c *Config) Policy() model.Policy {
	if c.DefaultPolicy != nil {
		return *c.DefaultPolicy
	}
	return model.DefaultPolicy()
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
