package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ConfigDir  = "/etc/blockd"
	ConfigFile = filepath.Join(ConfigDir, "config.toml")
)

type Config struct {
	BusName      string `toml:"bus_name" validate:"required,busname"`
	ObjectPath   string `toml:"object_path" validate:"required,startswith=/"`
	MountRoot    string `toml:"mount_root" validate:"required,startswith=/"`
	PollInterval string `toml:"poll_interval" validate:"required,duration"`
	SysfsRoot    string `toml:"sysfs_root" validate:"required"`
	UdevDataDir  string `toml:"udev_data_dir" validate:"required"`
	MountsFile   string `toml:"mounts_file" validate:"required"`
	PidFile      string `toml:"pid_file" validate:"required"`
	LogFile      string `toml:"log_file"`
	LogLevel     string `toml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

func Default() *Config {
	return &Config{
		BusName:      "org.blockd.Block",
		ObjectPath:   "/org/blockd/Block",
		MountRoot:    "/mnt",
		PollInterval: "1s",
		SysfsRoot:    "/sys",
		UdevDataDir:  "/run/udev/data",
		MountsFile:   "/proc/mounts",
		PidFile:      "/var/run/blockd.pid",
		LogFile:      "/var/log/blockd/blockd.log",
		LogLevel:     "info",
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = ConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = ConfigFile
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Interval is the monitor drain period. Validate guarantees it parses.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Level falls back to info for an empty or unknown level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("busname", validateBusName)
	return v
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// well-known bus names are dot separated, at least two elements, no leading digit
func validateBusName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if len(name) > 255 {
		return false
	}
	elements := 0
	start := true
	for _, r := range name {
		switch {
		case r == '.':
			if start {
				return false
			}
			elements++
			start = true
		case r >= '0' && r <= '9':
			if start {
				return false
			}
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
			start = false
		default:
			return false
		}
	}
	return !start && elements >= 1
}
