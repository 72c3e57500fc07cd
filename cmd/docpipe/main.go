package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/regwatch/docpipe/internal/app"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	def := app.DefaultConfig()

	var (
		configPath string
		version    bool

		input        string
		output       string
		serveAddr    string
		cacheBackend string
		cacheDir     string
		redisAddr    string
		interval     time.Duration
		maxRetries   int
		userAgent    string
		timeout      time.Duration
		maxPages     int
		workers      int
		verbose      bool
		debug        bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.StringVar(&input, "input", def.Input, "Path to newline-separated URL list")
	flag.StringVar(&output, "output", def.Output, "Path for JSON Lines results ('-' for stdout)")
	flag.StringVar(&serveAddr, "serve", def.ServeAddr, "Run the HTTP API on this address instead of a batch")
	flag.StringVar(&cacheBackend, "cache.backend", def.CacheBackend, "Cache backend: disk, redis or memory")
	flag.StringVar(&cacheDir, "cache.dir", def.CacheDir, "Disk cache directory")
	flag.StringVar(&redisAddr, "cache.redis", def.RedisAddr, "Redis address for the redis cache backend")
	flag.DurationVar(&interval, "rate.interval", def.RequestInterval, "Minimum spacing between requests to one origin")
	flag.IntVar(&maxRetries, "retry.max", def.MaxRetries, "Maximum retries after the first fetch attempt")
	flag.StringVar(&userAgent, "ua", def.UserAgent, "User-Agent for outbound requests")
	flag.DurationVar(&timeout, "timeout", def.RequestTimeout, "Per-request fetch timeout")
	flag.IntVar(&maxPages, "max.pages", def.MaxPages, "Page cap for extraction (0 = all pages)")
	flag.IntVar(&workers, "workers", def.Workers, "Concurrent documents in batch mode")
	flag.BoolVar(&verbose, "v", def.Verbose, "Verbose logging")
	flag.BoolVar(&debug, "debug", def.Debug, "Debug logging (implies -v)")
	flag.Parse()

	if version {
		fmt.Printf("docpipe %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	cfg, err := resolveConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	// Flags the user actually passed win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = input
		case "output":
			cfg.Output = output
		case "serve":
			cfg.ServeAddr = serveAddr
		case "cache.backend":
			cfg.CacheBackend = cacheBackend
		case "cache.dir":
			cfg.CacheDir = cacheDir
		case "cache.redis":
			cfg.RedisAddr = redisAddr
		case "rate.interval":
			cfg.RequestInterval = interval
		case "retry.max":
			cfg.MaxRetries = maxRetries
		case "ua":
			cfg.UserAgent = userAgent
		case "timeout":
			cfg.RequestTimeout = timeout
		case "max.pages":
			cfg.MaxPages = maxPages
		case "workers":
			cfg.Workers = workers
		case "v":
			cfg.Verbose = verbose
		case "debug":
			cfg.Debug = debug
		}
	})

	switch {
	case cfg.Debug:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case cfg.Verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := app.ValidateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// resolveConfig builds the effective configuration: defaults, then the
// optional YAML file, then DOCPIPE_* environment variables.
func resolveConfig(configPath string) (app.Config, error) {
	cfg := app.DefaultConfig()
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return cfg, err
		}
		if err := app.ApplyFileConfig(fc, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := app.ApplyEnvToConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()

	if cfg.ServeAddr != "" {
		return a.Serve(ctx)
	}
	return a.Run(ctx)
}
