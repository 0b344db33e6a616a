package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/cli/config"
	"github.com/pithecene-io/uadp/cli/render"
	"github.com/pithecene-io/uadp/lode"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/metacache"
)

// CacheEntry is one row of cache list output.
type CacheEntry struct {
	File        string `json:"file"`
	PublisherID string `json:"publisher_id"`
	WriterID    uint16 `json:"writer_id"`
	Version     string `json:"version"`
	DataSet     string `json:"dataset,omitempty"`
	Fields      int    `json:"fields"`
	Error       string `json:"error,omitempty"`
}

// ReconcileResponse is the response for cache reconcile.
type ReconcileResponse struct {
	Resident int      `json:"resident"`
	Removed  []string `json:"removed"`
}

// CacheCommand returns the cache command with subcommands.
// Cache commands operate on persisted meta frames only.
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain persisted meta frames",
		Subcommands: []*cli.Command{
			cacheListCommand(),
			cacheReconcileCommand(),
		},
	}
}

func cacheListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List persisted meta frames without modifying storage",
		Flags:  append(ReadOnlyFlags(), DecoderFlags()...),
		Action: cacheListAction,
	}
}

func cacheReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Apply the capacity bound and delete orphaned persisted frames",
		Flags:  append(ReadOnlyFlags(), DecoderFlags()...),
		Action: cacheReconcileAction,
	}
}

// openCacheStore resolves the storage config and opens it. A missing
// storage configuration is a usage error.
func openCacheStore(c *cli.Context) (*config.Config, *lode.BlobStore, error) {
	if c.Bool("tui") {
		return nil, nil, cli.Exit("--tui is not supported for cache commands", exitConfigError)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitConfigError)
	}
	applyDecoderFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, cli.Exit(err.Error(), exitConfigError)
	}
	store, err := lode.Open(c.Context, cfg.Storage())
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitRuntimeError)
	}
	if store == nil {
		return nil, nil, cli.Exit("no meta cache storage configured (use --cache-dir or --cache-backend)", exitConfigError)
	}
	return cfg, store, nil
}

func cacheListAction(c *cli.Context) error {
	r, err := tableRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	cfg, store, err := openCacheStore(c)
	if err != nil {
		return err
	}

	entries, err := listCache(c.Context, cfg, store)
	if err != nil {
		return cli.Exit(err.Error(), exitRuntimeError)
	}
	return r.Render(entries)
}

func listCache(ctx context.Context, cfg *config.Config, store metacache.Store) ([]CacheEntry, error) {
	scanned, err := metacache.Scan(ctx, store, cfg.Encoding.MessageOptions())
	if err != nil {
		return nil, err
	}
	entries := make([]CacheEntry, 0, len(scanned))
	for _, e := range scanned {
		row := CacheEntry{
			File:        e.Name,
			PublisherID: e.Key.PublisherID,
			WriterID:    e.Key.WriterID,
			Version:     e.Key.Version.String(),
		}
		if e.Err != nil {
			row.Error = e.Err.Error()
		}
		if e.Frame != nil {
			row.DataSet = e.Frame.Name
			row.Fields = len(e.Frame.Fields)
		}
		entries = append(entries, row)
	}
	return entries, nil
}

func cacheReconcileAction(c *cli.Context) error {
	r, err := tableRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	cfg, store, err := openCacheStore(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer func() { _ = logger.Sync() }()

	resp, err := reconcileCache(c.Context, cfg, store, logger.Named("metacache"))
	if err != nil {
		return cli.Exit(err.Error(), exitRuntimeError)
	}
	return r.Render(resp)
}

func reconcileCache(ctx context.Context, cfg *config.Config, store metacache.Store, logger log.Sink) (*ReconcileResponse, error) {
	opts := []metacache.Option{
		metacache.WithStore(store),
		metacache.WithOptions(cfg.Encoding.MessageOptions()),
		metacache.WithLogger(logger),
	}
	if cfg.Cache.Capacity > 0 {
		opts = append(opts, metacache.WithCapacity(cfg.Cache.Capacity))
	}
	cache := metacache.New(ctx, opts...)
	removed, err := cache.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []string{}
	}
	return &ReconcileResponse{Resident: cache.Len(), Removed: removed}, nil
}

// tableRenderer is a renderer whose text format falls back to table,
// for commands whose output has no message dump.
func tableRenderer(c *cli.Context) (*render.Renderer, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, err
	}
	if r.Format() == render.FormatText {
		return render.NewRendererWithWriter(render.FormatTable, c.Bool("no-color"), c.App.Writer), nil
	}
	return r, nil
}
