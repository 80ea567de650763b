package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"techevents/internal/config"
	"techevents/internal/geo"
	"techevents/internal/metrics"
	"techevents/internal/publish"
	"techevents/internal/social"
	"techevents/internal/source"
	"techevents/internal/store"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "techevents",
		Usage: "Aggregate tech events from several upstreams and publish them as JSON, calendar and feeds.",
		Commands: []*cli.Command{
			runCommand(),
			postCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one aggregation cycle, or keep running on a cron schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yml", Usage: "Path to the YAML config file."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be published without writing anything."},
			&cli.StringFlag{Name: "cron", Usage: "Cron schedule for periodic runs; empty means run once and exit."},
			&cli.StringFlag{Name: "metrics-listen", Usage: "Serve run metrics on this address while in cron mode."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			secrets := config.SecretsFromEnv()

			dryRun := c.Bool("dry-run")
			if secrets.GitHubToken == "" && !dryRun {
				return errors.New("GITHUB_TOKEN environment variable not set")
			}
			for _, sc := range cfg.Sources {
				if sc.Type == "eventbrite" && secrets.EventbriteToken == "" {
					return errors.New("EVENTBRITE_TOKEN environment variable not set")
				}
			}

			publisher, err := buildPublisher(cfg, secrets, dryRun, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			schedule := c.String("cron")
			if schedule == "" {
				return publisher.Run(ctx)
			}

			if addr := c.String("metrics-listen"); addr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", metrics.Handler())
					if err := http.ListenAndServe(addr, mux); err != nil {
						logger.Error("Metrics server failed", "error", err)
					}
				}()
				logger.Info("Serving metrics.", "addr", addr)
			}

			sched := cron.New()
			_, err = sched.AddFunc(schedule, func() {
				if err := publisher.Run(ctx); err != nil {
					logger.Error("Run failed", "error", err)
				}
			})
			if err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
			}

			logger.Info("Starting scheduler.", "schedule", schedule)
			sched.Start()
			<-ctx.Done()
			stop := sched.Stop()
			select {
			case <-stop.Done():
			case <-time.After(5 * time.Second):
			}
			logger.Info("Scheduler stopped.")
			return nil
		},
	}
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Announce not-yet-posted upcoming events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yml", Usage: "Path to the YAML config file."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be posted without posting."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			secrets := config.SecretsFromEnv()
			dryRun := c.Bool("dry-run")

			if !dryRun && (secrets.ConsumerKey == "" || secrets.AccessToken == "") {
				return errors.New("TWITTER_CONSUMER_KEY and TWITTER_ACCESS_TOKEN environment variables not set")
			}
			if cfg.Social.RedisAddr == "" {
				return errors.New("social.redis_addr is not configured")
			}

			st := store.New(cfg.Store, secrets.GitHubToken, cfg.Timeout, logger)
			poster := social.NewPoster(social.Credentials{
				ConsumerKey:    secrets.ConsumerKey,
				ConsumerSecret: secrets.ConsumerSecret,
				AccessToken:    secrets.AccessToken,
				AccessSecret:   secrets.AccessSecret,
			}, cfg.Social.APIURL, logger)
			sup := social.NewSuppressor(cfg.Social.RedisAddr)
			defer sup.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			announcer := publish.NewAnnouncer(st, poster, sup, cfg.Social, cfg.Store.EventsPath, dryRun, logger)
			return announcer.Run(ctx)
		},
	}
}

// buildPublisher wires sources, store and enricher from the configuration.
func buildPublisher(cfg *config.Config, secrets config.Secrets, dryRun bool, logger *slog.Logger) (*publish.Publisher, error) {
	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := source.NewFromConfig(sc, secrets, cfg.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build source %q: %w", sc.Type, err)
		}
		sources = append(sources, src)
		logger.Info("Configured source.", "source", src.Name())
	}

	st := store.New(cfg.Store, secrets.GitHubToken, cfg.Timeout, logger)

	var resolver publish.CityResolver
	var cache *geo.Cache
	if secrets.LocationIQToken != "" {
		var err error
		cache, err = geo.LoadCache(cfg.Geo.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load city cache: %w", err)
		}
		resolver = geo.NewResolver(cfg.Geo, secrets.LocationIQToken, source.NewHTTPClient(cfg.Timeout), cache, logger)
		logger.Info("City enrichment enabled.", "cached", cache.Len())
	} else {
		logger.Info("LOCATIONIQ_TOKEN not set, city enrichment disabled.")
	}

	return publish.New(sources, st, resolver, cache, cfg.Store, dryRun, logger), nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
