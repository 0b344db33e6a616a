package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/adapter"
	redisadapter "github.com/pithecene-io/uadp/adapter/redis"
	"github.com/pithecene-io/uadp/adapter/webhook"
	"github.com/pithecene-io/uadp/cli/config"
	"github.com/pithecene-io/uadp/cli/render"
	"github.com/pithecene-io/uadp/cli/tui"
	"github.com/pithecene-io/uadp/decode"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/transport"
	redistransport "github.com/pithecene-io/uadp/transport/redis"
)

// ConsumeCommand returns the consume command.
// Consume subscribes to Redis pub/sub, decodes every payload and forwards
// decoded events to the configured adapter until interrupted.
func ConsumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "Decode UADP messages from Redis pub/sub until interrupted",
		Flags: append(append(ReadOnlyFlags(), DecoderFlags()...),
			// Transport flags
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Redis URL to subscribe on (redis://host:port/db)",
			},
			&cli.StringSliceFlag{
				Name:  "channel",
				Usage: "Channel to subscribe to (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "pattern",
				Usage: "Channel pattern to subscribe to (repeatable)",
			},
			&cli.IntFlag{
				Name:  "queue-size",
				Usage: "Payloads buffered between transport and decoder",
				Value: transport.DefaultQueueSize,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Decoder wait on an empty queue",
				Value: decode.DefaultPollInterval,
			},
			// Chunk flags
			&cli.DurationFlag{
				Name:  "chunk-idle",
				Usage: "Drop partial chunk payloads idle this long (0 = never)",
			},
			&cli.DurationFlag{
				Name:  "chunk-sweep",
				Usage: "How often idle chunk payloads are checked",
				Value: decode.DefaultChunkSweepInterval,
			},
			&cli.BoolFlag{
				Name:  "reconcile",
				Usage: "Delete orphaned persisted meta frames at startup",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis adapter channel (default uadp:decoded)",
			},
			&cli.StringFlag{
				Name:  "adapter-codec",
				Usage: "Adapter payload codec: json or msgpack",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Adapter per-request timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not print decoded messages",
			},
		),
		Action: consumeAction,
	}
}

// applyConsumeFlags folds transport, chunk and adapter flags into cfg.
func applyConsumeFlags(c *cli.Context, cfg *config.Config) {
	cfg.Transport.URL = resolveString(c, "redis-url", cfg.Transport.URL)
	cfg.Transport.Channels = resolveStrings(c, "channel", cfg.Transport.Channels)
	cfg.Transport.Patterns = resolveStrings(c, "pattern", cfg.Transport.Patterns)
	cfg.Transport.QueueSize = resolveInt(c, "queue-size", cfg.Transport.QueueSize)
	cfg.Transport.PollInterval.Duration = resolveDuration(c, "poll-interval", cfg.Transport.PollInterval)

	cfg.Chunks.IdleTimeout.Duration = resolveDuration(c, "chunk-idle", cfg.Chunks.IdleTimeout)
	cfg.Chunks.SweepInterval.Duration = resolveDuration(c, "chunk-sweep", cfg.Chunks.SweepInterval)
	cfg.Cache.Reconcile = resolveBool(c, "reconcile", cfg.Cache.Reconcile)

	cfg.Adapter.Type = resolveString(c, "adapter", cfg.Adapter.Type)
	cfg.Adapter.URL = resolveString(c, "adapter-url", cfg.Adapter.URL)
	cfg.Adapter.Channel = resolveString(c, "adapter-channel", cfg.Adapter.Channel)
	cfg.Adapter.Codec = resolveString(c, "adapter-codec", cfg.Adapter.Codec)
	cfg.Adapter.Timeout.Duration = resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout)
	if c.IsSet("adapter-retries") {
		retries := c.Int("adapter-retries")
		cfg.Adapter.Retries = &retries
	}
}

// buildAdapter creates the configured adapter, or nil when none is set.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Codec:   cfg.Codec,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redisadapter.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redisadapter.New(redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Codec:   cfg.Codec,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", cfg.Type)
	}
}

func consumeAction(c *cli.Context) error {
	useTUI := c.Bool("tui")
	if useTUI {
		if err := tui.CheckSupported(tui.ViewConsume); err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	applyDecoderFlags(c, cfg)
	applyConsumeFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if cfg.Transport.URL == "" {
		return cli.Exit("--redis-url or transport.url is required", exitConfigError)
	}
	if len(cfg.Transport.Channels) == 0 && len(cfg.Transport.Patterns) == 0 {
		return cli.Exit("at least one --channel or --pattern is required", exitConfigError)
	}

	// Logs would corrupt the TUI's alternate screen.
	var logOut io.Writer = c.App.ErrWriter
	if useTUI {
		logOut = io.Discard
	}
	logger, err := newLogger(cfg.Log.Level, logOut)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitConfigError)
	}
	defer func() { _ = logger.Sync() }()

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p, err := buildPipeline(ctx, cfg, logger, "redis", cfg.Adapter.Type,
		decode.WithPollInterval(cfg.Transport.PollInterval.Duration),
		decode.WithChunkSweep(cfg.Chunks.IdleTimeout.Duration, cfg.Chunks.SweepInterval.Duration),
	)
	if err != nil {
		return cli.Exit(err.Error(), exitRuntimeError)
	}

	queue := transport.NewQueue(cfg.Transport.QueueSize)
	sub, err := redistransport.New(redistransport.Config{
		URL:      cfg.Transport.URL,
		Channels: cfg.Transport.Channels,
		Patterns: cfg.Transport.Patterns,
	}, queue, logger.Named("transport"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer func() { _ = sub.Close() }()

	a, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	var n *notifier
	if a != nil {
		n = newNotifier(a, 0, logger.Named("adapter"), p.metrics)
	}

	var r *render.Renderer
	if !useTUI && !c.Bool("quiet") {
		if r, err = render.NewRenderer(c); err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}
	var tuiEvents chan *adapter.DecodedEvent
	if useTUI {
		tuiEvents = make(chan *adapter.DecodedEvent, tui.DefaultRecent)
	}

	p.decoder.Subscribe(func(e decode.Event) {
		ev := adapter.NewDecodedEvent(e)
		if n != nil {
			n.Notify(ev)
		}
		if tuiEvents != nil {
			select {
			case tuiEvents <- ev:
			default:
			}
		}
		if r != nil {
			if err := r.RenderMessage(e.Message, ev); err != nil {
				logger.Warn("render failed", map[string]any{"error": err.Error()})
			}
		}
	})

	runErr := runConsumer(ctx, cancel, sub, p.decoder, queue, func(ctx context.Context) error {
		if !useTUI {
			<-ctx.Done()
			return nil
		}
		return tui.RunStatsTUI(ctx, p.metrics.Snapshot, tuiEvents)
	})

	if n != nil {
		if err := n.Close(); err != nil {
			logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}

	reportSummary(c, p, logger, useTUI || c.Bool("quiet"))

	if runErr != nil {
		return cli.Exit(runErr.Error(), exitRuntimeError)
	}
	return nil
}

type subscriber interface {
	Run(ctx context.Context) error
}

// runConsumer runs the transport and the decoder until ctx is done or
// either of them fails, with foreground on the calling goroutine. It
// returns the first failure.
func runConsumer(ctx context.Context, cancel context.CancelFunc, sub subscriber, dec *decode.Decoder, queue *transport.Queue, foreground func(context.Context) error) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		runErr error
	)
	record := func(name string, err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		mu.Lock()
		if runErr == nil {
			runErr = fmt.Errorf("%s: %w", name, err)
		}
		mu.Unlock()
	}
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			record(name, fn(ctx))
		}()
	}

	start("transport", sub.Run)
	start("decoder", func(ctx context.Context) error { return dec.Run(ctx, queue) })

	record("tui", foreground(ctx))
	cancel()
	dec.Stop()
	wg.Wait()
	return runErr
}

func reportSummary(c *cli.Context, p *pipeline, logger *log.Logger, quiet bool) {
	s := p.metrics.Snapshot()
	if !quiet && isStderrTTY() {
		fmt.Fprintln(c.App.ErrWriter, tui.RenderStatsStatic(s))
		return
	}
	logger.Info("consume finished", map[string]any{
		"received":         s.MessagesReceived,
		"decode_failures":  s.DecodeFailures,
		"unsupported":      s.UnsupportedMessages,
		"schema_misses":    s.SchemaMisses,
		"chunks_completed": s.ChunksCompleted,
		"meta_cached":      p.cache.Len(),
		"notified":         s.NotificationsPublished,
		"notify_failures":  s.NotificationsFailed,
	})
}
