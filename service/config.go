package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jsccast/yaml"
)

// Config is the service's configuration.  It can be written in YAML
// or JSON.  Durations are strings like "90s".
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `json:"addr" yaml:"addr"`

	// FormsDir is the directory of form files.
	FormsDir string `json:"formsDir" yaml:"formsDir"`

	// Watch reloads forms when their files change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`

	// Interpreter names the expression language for conditions
	// and derived fields.  See interpreters.Standard.
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`

	// Prelude is optional code run before each expression.
	Prelude string `json:"prelude,omitempty" yaml:"prelude,omitempty"`

	// EvalTimeout bounds each expression evaluation.
	EvalTimeout string `json:"evalTimeout,omitempty" yaml:"evalTimeout,omitempty"`

	LazyFirstQuestion bool `json:"lazyFirstQuestion,omitempty" yaml:"lazyFirstQuestion,omitempty"`

	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Sinks     []*SinkConfig   `json:"sinks,omitempty" yaml:"sinks,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Uploads   UploadConfig    `json:"uploads" yaml:"uploads"`
	Sweep     SweepConfig     `json:"sweep" yaml:"sweep"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// StorageConfig says where checkpoints go.
type StorageConfig struct {
	// Kind is "memory", "bolt", "redis", or "none".
	Kind string `json:"kind" yaml:"kind"`

	// File is the BoltDB filename.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// URL is the Redis URL.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// TTL is the Redis key expiration.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// SinkConfig describes one destination for response Records.
type SinkConfig struct {
	// Kind is "http", "mqtt", "mongo", "bolt", or "log".
	Kind string `json:"kind" yaml:"kind"`

	// URL is the HTTP endpoint or the MongoDB URI.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Broker, ClientId, and Topic are for MQTT.
	Broker   string `json:"broker,omitempty" yaml:"broker,omitempty"`
	ClientId string `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	Topic    string `json:"topic,omitempty" yaml:"topic,omitempty"`
	QoS      int    `json:"qos,omitempty" yaml:"qos,omitempty"`

	// Database and Collection are for MongoDB.
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`

	// File is the BoltDB filename.  When it's the same as the
	// storage file, the same database is used.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

type SchedulerConfig struct {
	Shards    int    `json:"shards,omitempty" yaml:"shards,omitempty"`
	QueueSize int    `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// UploadConfig says where uploaded files go.  With a URL, files are
// posted to that endpoint.  Otherwise, with a Dir, they are written
// there.
type UploadConfig struct {
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// SweepConfig controls the eviction of idle clients.
type SweepConfig struct {
	// Schedule is a cron expression.  Empty means no sweeping.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// IdleTTL is how long a client can be idle before eviction.
	IdleTTL string `json:"idleTTL,omitempty" yaml:"idleTTL,omitempty"`
}

// DefaultConfig returns a Config that works without any external
// services.
func DefaultConfig() *Config {
	return &Config{
		Addr:        ":8080",
		FormsDir:    "forms",
		Interpreter: "goja",
		EvalTimeout: "100ms",
		Storage: StorageConfig{
			Kind: "memory",
		},
		Sinks: []*SinkConfig{
			{Kind: "log"},
		},
		Scheduler: SchedulerConfig{
			Shards:    8,
			QueueSize: 256,
			Timeout:   "10s",
		},
		Sweep: SweepConfig{
			Schedule: "*/5 * * * *",
			IdleTTL:  "30m",
		},
	}
}

// LoadConfig reads a Config from a YAML or JSON file.  Anything the
// file doesn't say comes from DefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err = ParseConfig(filename, bs, c); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, c.Check()
}

// ParseConfig decodes YAML (or JSON, if the filename ends in
// ".json") into the given Config.
func ParseConfig(filename string, bs []byte, c *Config) error {
	if filepath.Ext(filename) == ".json" {
		return json.Unmarshal(bs, c)
	}
	return yaml.Unmarshal(bs, c)
}

// Duration parses a duration string.  The empty string is the given
// default.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// Check reports the first problem with the Config.
func (c *Config) Check() error {
	for _, d := range []struct {
		name, val string
	}{
		{"evalTimeout", c.EvalTimeout},
		{"storage.ttl", c.Storage.TTL},
		{"scheduler.timeout", c.Scheduler.Timeout},
		{"sweep.idleTTL", c.Sweep.IdleTTL},
	} {
		if _, err := Duration(d.val, 0); err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
	}

	switch c.Storage.Kind {
	case "", "memory", "none":
	case "bolt":
		if c.Storage.File == "" {
			return fmt.Errorf("config storage: bolt needs a file")
		}
	case "redis":
		if c.Storage.URL == "" {
			return fmt.Errorf("config storage: redis needs a url")
		}
	default:
		return fmt.Errorf("config storage: unknown kind '%s'", c.Storage.Kind)
	}

	for i, s := range c.Sinks {
		if s == nil {
			return fmt.Errorf("config sinks[%d]: empty", i)
		}
		switch s.Kind {
		case "log":
		case "http", "mongo":
			if s.URL == "" {
				return fmt.Errorf("config sinks[%d]: %s needs a url", i, s.Kind)
			}
		case "mqtt":
			if s.Broker == "" {
				return fmt.Errorf("config sinks[%d]: mqtt needs a broker", i)
			}
		case "bolt":
			if s.File == "" && c.Storage.Kind != "bolt" {
				return fmt.Errorf("config sinks[%d]: bolt needs a file", i)
			}
		default:
			return fmt.Errorf("config sinks[%d]: unknown kind '%s'", i, s.Kind)
		}
	}

	return nil
}
