package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/chunk"
	"github.com/pithecene-io/uadp/cli/config"
	"github.com/pithecene-io/uadp/decode"
	"github.com/pithecene-io/uadp/lode"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/metacache"
	"github.com/pithecene-io/uadp/metrics"
)

// Exit codes.
const (
	exitSuccess       = 0
	exitDecodeFailure = 1
	exitConfigError   = 2
	exitRuntimeError  = 3
)

// loadConfig reads the file named by --config, or ./uadp.yaml when it
// exists. Without either, it returns an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			return &config.Config{}, nil
		}
		path = config.DefaultPath
	}
	return config.Load(path)
}

// resolveString returns the flag value when it was set explicitly or the
// config has nothing; otherwise the config value.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveDuration(c *cli.Context, name string, cfgVal config.Duration) time.Duration {
	if c.IsSet(name) || cfgVal.Duration == 0 {
		return c.Duration(name)
	}
	return cfgVal.Duration
}

func resolveStrings(c *cli.Context, name string, cfgVal []string) []string {
	if c.IsSet(name) || len(cfgVal) == 0 {
		return c.StringSlice(name)
	}
	return cfgVal
}

// applyDecoderFlags folds the decoder and storage flags into cfg.
// CLI flags always override config values.
func applyDecoderFlags(c *cli.Context, cfg *config.Config) {
	cfg.Encoding.LegacyFieldFlagEncoding = resolveBool(c, "legacy-field-flags", cfg.Encoding.LegacyFieldFlagEncoding)
	cfg.Encoding.DiskMetaMessageCacheDirectory = resolveString(c, "cache-dir", cfg.Encoding.DiskMetaMessageCacheDirectory)
	cfg.Log.Level = resolveString(c, "log-level", cfg.Log.Level)

	cfg.Cache.Backend = resolveString(c, "cache-backend", cfg.Cache.Backend)
	cfg.Cache.Path = resolveString(c, "cache-path", cfg.Cache.Path)
	cfg.Cache.Region = resolveString(c, "cache-region", cfg.Cache.Region)
	cfg.Cache.Endpoint = resolveString(c, "cache-endpoint", cfg.Cache.Endpoint)
	cfg.Cache.S3PathStyle = resolveBool(c, "cache-s3-path-style", cfg.Cache.S3PathStyle)
	cfg.Cache.Capacity = resolveInt(c, "cache-capacity", cfg.Cache.Capacity)
}

func newLogger(level string, w io.Writer) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.New(w, lvl), nil
}

// pipeline is the decoder with the components it owns.
type pipeline struct {
	logger  *log.Logger
	metrics *metrics.Collector
	store   *lode.BlobStore
	cache   *metacache.Cache
	chunks  *chunk.Manager
	decoder *decode.Decoder
}

// buildPipeline opens the meta cache storage and wires a decoder to it.
// transport and adapter label the metrics collector.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *log.Logger, transport, adapter string, opts ...decode.Option) (*pipeline, error) {
	store, err := lode.Open(ctx, cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("open meta cache storage: %w", err)
	}

	backend := ""
	if store != nil {
		backend = store.Backend()
	}
	m := metrics.NewCollector(transport, backend, adapter)

	cacheOpts := []metacache.Option{
		metacache.WithOptions(cfg.Encoding.MessageOptions()),
		metacache.WithLogger(logger.Named("metacache")),
		metacache.WithMetrics(m),
	}
	if store != nil {
		cacheOpts = append(cacheOpts, metacache.WithStore(store))
	}
	if cfg.Cache.Capacity > 0 {
		cacheOpts = append(cacheOpts, metacache.WithCapacity(cfg.Cache.Capacity))
	}
	if cfg.Cache.IOTimeout.Duration > 0 {
		cacheOpts = append(cacheOpts, metacache.WithIOTimeout(cfg.Cache.IOTimeout.Duration))
	}
	cache := metacache.New(ctx, cacheOpts...)

	if cfg.Cache.Reconcile && store != nil {
		removed, err := cache.Reconcile(ctx)
		if err != nil {
			logger.Warn("meta cache reconcile failed", map[string]any{"error": err.Error()})
		} else if len(removed) > 0 {
			logger.Info("meta cache reconciled", map[string]any{"removed": len(removed)})
		}
	}

	chunks := chunk.NewManager(
		chunk.WithLogger(logger.Named("chunk")),
		chunk.WithMetrics(m),
	)

	decOpts := append([]decode.Option{
		decode.WithOptions(cfg.Encoding.MessageOptions()),
		decode.WithCache(cache),
		decode.WithChunkManager(chunks),
		decode.WithLogger(logger.Named("decode")),
		decode.WithMetrics(m),
	}, opts...)

	return &pipeline{
		logger:  logger,
		metrics: m,
		store:   store,
		cache:   cache,
		chunks:  chunks,
		decoder: decode.New(decOpts...),
	}, nil
}
