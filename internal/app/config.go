package app

import (
	"time"

	"github.com/regwatch/docpipe/internal/cache"
	"github.com/regwatch/docpipe/internal/extract"
)

// Config carries every runtime knob for the pipeline. Zero values are
// filled in by DefaultConfig and then overlaid, in order, by a YAML
// config file, environment variables, and command-line flags.
type Config struct {
	// Input is a file of newline-separated URLs to process in batch
	// mode. Ignored when ServeAddr is set.
	Input string

	// Output is the path of the JSON Lines results file written in
	// batch mode. "-" writes to stdout.
	Output string

	// ServeAddr, when non-empty, starts the HTTP API on this address
	// instead of running a batch.
	ServeAddr string

	// CacheBackend selects the cache store: "disk", "redis" or
	// "memory".
	CacheBackend string

	// CacheDir is the root directory of the disk backend.
	CacheDir string

	// RedisAddr, RedisPassword, RedisDB and RedisPoolSize configure the
	// redis backend. Only consulted when CacheBackend is "redis".
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// TTLRaw, TTLText and TTLAPI override the per-namespace cache
	// lifetimes. Zero keeps the built-in default.
	TTLRaw  time.Duration
	TTLText time.Duration
	TTLAPI  time.Duration

	// RequestInterval is the minimum spacing between requests to the
	// same origin. OriginIntervals holds per-origin overrides keyed by
	// hostname (lowercase, no port).
	RequestInterval time.Duration
	OriginIntervals map[string]time.Duration

	// MaxRetries, RetryInitialDelay, RetryMaxDelay and RetryJitter
	// shape the fetch retry policy.
	MaxRetries        int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryJitter       bool

	// UserAgent identifies the client on outbound requests.
	UserAgent string

	// RequestTimeout bounds each individual fetch attempt.
	RequestTimeout time.Duration

	// MaxPages caps how many pages of a document are extracted.
	// Zero means no cap.
	MaxPages int

	// OCRDPI and OCREnhancedDPI set the render resolution of the two
	// OCR passes. OCRLanguage is the tesseract language code.
	OCRDPI         int
	OCREnhancedDPI int
	OCRLanguage    string

	// Validity holds the thresholds an extraction must clear before
	// its text is accepted.
	Validity extract.Validity

	// Workers bounds how many documents are processed concurrently in
	// batch mode.
	Workers int

	// Verbose and Debug raise the log level.
	Verbose bool
	Debug   bool
}

// DefaultConfig returns the configuration used when nothing else is
// specified.
func DefaultConfig() Config {
	ttls := cache.DefaultTTLs()
	return Config{
		Output:            "-",
		CacheBackend:      "disk",
		CacheDir:          ".docpipe-cache",
		RedisDB:           0,
		TTLRaw:            ttls[cache.NamespaceRaw],
		TTLText:           ttls[cache.NamespaceText],
		TTLAPI:            ttls[cache.NamespaceAPI],
		RequestInterval:   2 * time.Second,
		MaxRetries:        3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     10 * time.Second,
		RetryJitter:       true,
		UserAgent:         "docpipe/1.0 (+https://github.com/regwatch/docpipe)",
		RequestTimeout:    30 * time.Second,
		OCRDPI:            150,
		OCREnhancedDPI:    300,
		OCRLanguage:       "eng",
		Validity:          extract.DefaultValidity(),
		Workers:           4,
	}
}
