// Package config loads the service configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/log"
)

// Defaults applied to every field the file leaves empty.
const (
	DefaultPort                = 3030
	DefaultLocalModelDir       = "models"
	DefaultQueueCapacity       = 10
	DefaultTextureFetchWorkers = 4
	DefaultFetchTimeout        = 30 * time.Second
	DefaultProfileInterval     = time.Minute
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
)

// Config is the content of config.toml.
type Config struct {
	Port   int          `toml:"port"`
	Models ModelsConfig `toml:"models"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

// ModelsConfig locates the models that requests may reference by file name.
type ModelsConfig struct {
	LocalModelDir string `toml:"local_model_dir"`
}

// RenderConfig tunes the render context and the dispatcher.
type RenderConfig struct {
	QueueCapacity        int           `toml:"queue_capacity"`
	ForceFallbackAdapter bool          `toml:"force_fallback_adapter"`
	DisableMSAA          bool          `toml:"disable_msaa"`
	TextureFetchWorkers  int           `toml:"texture_fetch_workers"`
	FetchTimeout         time.Duration `toml:"fetch_timeout"`
	ProfileInterval      time.Duration `toml:"profile_interval"`
}

// LogConfig selects the log level and line format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a TOML config file and fills the fields it leaves empty with defaults.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - *Config: the loaded configuration
//   - error: error if the file cannot be read or decoded, or a value is invalid
func Load(path string) (*Config, error) {
	c := &Config{}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		log.New("config").Warningf("ignoring unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes TOML text, applying defaults like Load.
func Parse(data string) (*Config, error) {
	c := &Config{}
	if _, err := toml.Decode(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	c.Port = common.Coalesce(c.Port, DefaultPort)
	c.Models.LocalModelDir = common.Coalesce(c.Models.LocalModelDir, DefaultLocalModelDir)
	c.Render.QueueCapacity = common.Coalesce(c.Render.QueueCapacity, DefaultQueueCapacity)
	c.Render.TextureFetchWorkers = common.Coalesce(c.Render.TextureFetchWorkers, DefaultTextureFetchWorkers)
	c.Render.FetchTimeout = common.Coalesce(c.Render.FetchTimeout, DefaultFetchTimeout)
	c.Render.ProfileInterval = common.Coalesce(c.Render.ProfileInterval, DefaultProfileInterval)
	c.Log.Level = common.Coalesce(c.Log.Level, DefaultLogLevel)
	c.Log.Format = common.Coalesce(c.Log.Format, DefaultLogFormat)
}

// Validate reports every out of range value.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Render.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("render.queue_capacity must be positive, got %d", c.Render.QueueCapacity))
	}
	if c.Render.TextureFetchWorkers < 1 {
		errs = append(errs, fmt.Errorf("render.texture_fetch_workers must be positive, got %d", c.Render.TextureFetchWorkers))
	}
	if c.Render.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("render.fetch_timeout must not be negative, got %v", c.Render.FetchTimeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the configured port on every interface.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
