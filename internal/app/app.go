package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/regwatch/docpipe/internal/cache"
	"github.com/regwatch/docpipe/internal/extract"
	"github.com/regwatch/docpipe/internal/fetch"
	"github.com/regwatch/docpipe/internal/metrics"
	"github.com/regwatch/docpipe/internal/pipeline"
	"github.com/regwatch/docpipe/internal/ratelimit"
	"github.com/regwatch/docpipe/internal/retry"
	"github.com/regwatch/docpipe/internal/server"
)

// App owns the assembled pipeline and its supporting pieces for one run.
type App struct {
	cfg      Config
	pipe     *pipeline.Pipeline
	registry *prometheus.Registry
	closer   io.Closer
}

// New wires the cache backend, rate limiter, fetch client, extractor and
// metrics into a pipeline according to cfg. ValidateConfig should have been
// called already; New still fails on backends it cannot reach.
func New(cfg Config) (*App, error) {
	a := &App{cfg: cfg}

	var backend cache.Backend
	switch cfg.CacheBackend {
	case "disk":
		backend = &cache.DiskBackend{Dir: cfg.CacheDir}
	case "redis":
		rb, err := cache.NewRedisBackend(cache.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		backend = rb
		a.closer = rb
	case "memory":
		backend = cache.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	ttls := cache.DefaultTTLs()
	if cfg.TTLRaw > 0 {
		ttls[cache.NamespaceRaw] = cfg.TTLRaw
	}
	if cfg.TTLText > 0 {
		ttls[cache.NamespaceText] = cfg.TTLText
	}
	if cfg.TTLAPI > 0 {
		ttls[cache.NamespaceAPI] = cfg.TTLAPI
	}
	store := cache.NewStore(backend, ttls)

	policy := retry.NetworkProfile(fetch.IsTransient)
	policy.MaxRetries = cfg.MaxRetries
	if cfg.RetryInitialDelay > 0 {
		policy.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	policy.Jitter = cfg.RetryJitter

	a.registry = prometheus.NewRegistry()

	a.pipe = &pipeline.Pipeline{
		Cache:   store,
		Limiter: ratelimit.NewLimiter(cfg.RequestInterval, cfg.OriginIntervals),
		Fetcher: &fetch.Client{
			HTTPClient:        newFetchHTTPClient(),
			UserAgent:         cfg.UserAgent,
			PerRequestTimeout: cfg.RequestTimeout,
		},
		Extractor: extract.New(extract.Config{
			OCRDPI:         float64(cfg.OCRDPI),
			OCREnhancedDPI: float64(cfg.OCREnhancedDPI),
			OCRLanguage:    cfg.OCRLanguage,
			Validity:       cfg.Validity,
		}),
		FetchPolicy: policy,
		MaxPages:    cfg.MaxPages,
		Metrics:     metrics.New(a.registry),
	}
	return a, nil
}

// Pipeline exposes the assembled pipeline, mainly for tests.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// Close releases backend connections.
func (a *App) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Run executes one batch: read the URL list, process every URL with the
// configured concurrency, and write one JSON result per line to the output.
// The returned error reflects setup problems only; per-document failures are
// recorded in the output and logged.
func (a *App) Run(ctx context.Context) error {
	urls, err := readURLList(a.cfg.Input)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		log.Warn().Str("input", a.cfg.Input).Msg("no URLs to process")
		return nil
	}
	log.Info().Int("urls", len(urls)).Int("workers", a.cfg.Workers).Msg("starting batch")

	out := os.Stdout
	if a.cfg.Output != "" && a.cfg.Output != "-" {
		f, err := os.Create(a.cfg.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	outcomes := a.pipe.ProcessAll(ctx, urls, a.cfg.Workers)

	enc := json.NewEncoder(out)
	okCount, failCount := 0, 0
	for _, oc := range outcomes {
		line := batchLine{URL: oc.URL}
		if oc.Err != nil {
			failCount++
			line.Error = oc.Err.Error()
		} else {
			okCount++
			line.Document = &oc.Doc
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	log.Info().Int("ok", okCount).Int("failed", failCount).Msg("batch finished")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// batchLine is one row of the JSON Lines batch output.
type batchLine struct {
	URL      string             `json:"url"`
	Document *pipeline.Document `json:"document,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Serve runs the HTTP API until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (a *App) Serve(ctx context.Context) error {
	srv := &server.Server{
		Processor:      a.pipe,
		Gatherer:       a.registry,
		RequestTimeout: 2 * time.Minute,
	}
	httpSrv := &http.Server{
		Addr:              a.cfg.ServeAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.ServeAddr).Msg("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// readURLList loads newline-separated URLs, skipping blanks and # comments.
func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read URL list: %w", err)
	}
	return urls, nil
}
