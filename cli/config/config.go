package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/uadp/lode"
	"github.com/pithecene-io/uadp/message"
)

// Config represents a uadp.yaml configuration file.
// All values are optional and act as defaults for uadp flags.
// CLI flags always override config values.
type Config struct {
	Encoding  EncodingOptions `yaml:"encoding"`
	Cache     CacheConfig     `yaml:"cache"`
	Transport TransportConfig `yaml:"transport"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Chunks    ChunksConfig    `yaml:"chunks"`
	Log       LogConfig       `yaml:"log"`
}

// EncodingOptions are the wire options threaded through every decode.
type EncodingOptions struct {
	// LegacyFieldFlagEncoding reads field flags as one byte instead of two.
	LegacyFieldFlagEncoding bool `yaml:"legacy_field_flag_encoding"`
	// SendMetaMessageWithoutRetain is an outbound option. The decoder
	// accepts and ignores it.
	SendMetaMessageWithoutRetain bool `yaml:"send_meta_message_without_retain"`
	// DiskMetaMessageCacheDirectory enables meta cache persistence for
	// the fs backend. Empty disables it.
	DiskMetaMessageCacheDirectory string `yaml:"disk_meta_message_cache_directory"`
}

// CacheConfig configures the meta cache and where it is persisted.
type CacheConfig struct {
	// Backend is fs (default), s3 or memory.
	Backend string `yaml:"backend"`
	// Path is bucket/prefix for s3. For fs the encoding directory wins
	// when both are set.
	Path        string   `yaml:"path"`
	Region      string   `yaml:"region"`
	Endpoint    string   `yaml:"endpoint"`
	S3PathStyle bool     `yaml:"s3_path_style"`
	Capacity    int      `yaml:"capacity"`
	IOTimeout   Duration `yaml:"io_timeout,omitempty"`
	// Reconcile removes orphaned persisted frames after loading.
	Reconcile bool `yaml:"reconcile"`
}

// TransportConfig configures the inbound Redis subscription.
type TransportConfig struct {
	URL          string   `yaml:"url"`
	Channels     []string `yaml:"channels,omitempty"`
	Patterns     []string `yaml:"patterns,omitempty"`
	QueueSize    int      `yaml:"queue_size"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Codec   string            `yaml:"codec,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ChunksConfig configures the idle sweep of partial chunk payloads.
type ChunksConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MessageOptions returns the options passed to the message codec.
func (e EncodingOptions) MessageOptions() message.Options {
	return message.Options{LegacyFieldFlagEncoding: e.LegacyFieldFlagEncoding}
}

// Storage returns the storage configuration of the meta cache mirror.
// An fs backend without a directory disables persistence.
func (c *Config) Storage() lode.Config {
	cfg := lode.Config{
		Backend:   c.Cache.Backend,
		Path:      c.Cache.Path,
		Region:    c.Cache.Region,
		Endpoint:  c.Cache.Endpoint,
		PathStyle: c.Cache.S3PathStyle,
	}
	if (cfg.Backend == "" || cfg.Backend == lode.BackendFS) && c.Encoding.DiskMetaMessageCacheDirectory != "" {
		cfg.Path = c.Encoding.DiskMetaMessageCacheDirectory
	}
	return cfg
}

// Validate reports configuration errors that would otherwise surface late.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case "", lode.BackendFS, lode.BackendS3, lode.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == lode.BackendS3 && c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path: s3 backend requires bucket/prefix"))
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity: must be >= 0, got %d", c.Cache.Capacity))
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url: required when adapter.type is set"))
	}
	if c.Transport.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("transport.queue_size: must be >= 0, got %d", c.Transport.QueueSize))
	}
	return errors.Join(errs...)
}
