package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the YAML configuration file. Every field is a
// pointer or map so that an absent key can be told apart from an
// explicit zero; only keys present in the file overlay the config.
type FileConfig struct {
	Input     *string `yaml:"input"`
	Output    *string `yaml:"output"`
	ServeAddr *string `yaml:"serve_addr"`

	Cache struct {
		Backend  *string `yaml:"backend"`
		Dir      *string `yaml:"dir"`
		Redis    *string `yaml:"redis_addr"`
		Password *string `yaml:"redis_password"`
		DB       *int    `yaml:"redis_db"`
		PoolSize *int    `yaml:"redis_pool_size"`
		TTLRaw   *string `yaml:"ttl_raw"`
		TTLText  *string `yaml:"ttl_text"`
		TTLAPI   *string `yaml:"ttl_api"`
	} `yaml:"cache"`

	RateLimit struct {
		Interval *string           `yaml:"interval"`
		Origins  map[string]string `yaml:"origins"`
	} `yaml:"rate_limit"`

	Retry struct {
		MaxRetries   *int    `yaml:"max_retries"`
		InitialDelay *string `yaml:"initial_delay"`
		MaxDelay     *string `yaml:"max_delay"`
		Jitter       *bool   `yaml:"jitter"`
	} `yaml:"retry"`

	Fetch struct {
		UserAgent *string `yaml:"user_agent"`
		Timeout   *string `yaml:"timeout"`
	} `yaml:"fetch"`

	Extract struct {
		MaxPages      *int     `yaml:"max_pages"`
		OCRDPI        *int     `yaml:"ocr_dpi"`
		OCREnhanced   *int     `yaml:"ocr_enhanced_dpi"`
		OCRLanguage   *string  `yaml:"ocr_language"`
		MinTextLength *int     `yaml:"min_text_length"`
		MinWordCount  *int     `yaml:"min_word_count"`
		MinAlnumRatio *float64 `yaml:"min_alnum_ratio"`
	} `yaml:"extract"`

	Workers *int `yaml:"workers"`
}

// LoadConfigFile reads and parses a YAML config file. A missing file
// is an error; callers decide whether the path was optional.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFileConfig overlays fc on cfg. Keys absent from the file leave
// cfg untouched.
func ApplyFileConfig(fc FileConfig, cfg *Config) error {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src *string, key string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("config key %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString(&cfg.Input, fc.Input)
	setString(&cfg.Output, fc.Output)
	setString(&cfg.ServeAddr, fc.ServeAddr)

	setString(&cfg.CacheBackend, fc.Cache.Backend)
	setString(&cfg.CacheDir, fc.Cache.Dir)
	setString(&cfg.RedisAddr, fc.Cache.Redis)
	setString(&cfg.RedisPassword, fc.Cache.Password)
	setInt(&cfg.RedisDB, fc.Cache.DB)
	setInt(&cfg.RedisPoolSize, fc.Cache.PoolSize)
	if err := setDur(&cfg.TTLRaw, fc.Cache.TTLRaw, "cache.ttl_raw"); err != nil {
		return err
	}
	if err := setDur(&cfg.TTLText, fc.Cache.TTLText, "cache.ttl_text"); err != nil {
		return err
	}
	if err := setDur(&cfg.TTLAPI, fc.Cache.TTLAPI, "cache.ttl_api"); err != nil {
		return err
	}

	if err := setDur(&cfg.RequestInterval, fc.RateLimit.Interval, "rate_limit.interval"); err != nil {
		return err
	}
	if len(fc.RateLimit.Origins) > 0 {
		if cfg.OriginIntervals == nil {
			cfg.OriginIntervals = make(map[string]time.Duration, len(fc.RateLimit.Origins))
		}
		for origin, raw := range fc.RateLimit.Origins {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("config key rate_limit.origins[%s]: %w", origin, err)
			}
			cfg.OriginIntervals[origin] = d
		}
	}

	setInt(&cfg.MaxRetries, fc.Retry.MaxRetries)
	if err := setDur(&cfg.RetryInitialDelay, fc.Retry.InitialDelay, "retry.initial_delay"); err != nil {
		return err
	}
	if err := setDur(&cfg.RetryMaxDelay, fc.Retry.MaxDelay, "retry.max_delay"); err != nil {
		return err
	}
	if fc.Retry.Jitter != nil {
		cfg.RetryJitter = *fc.Retry.Jitter
	}

	setString(&cfg.UserAgent, fc.Fetch.UserAgent)
	if err := setDur(&cfg.RequestTimeout, fc.Fetch.Timeout, "fetch.timeout"); err != nil {
		return err
	}

	setInt(&cfg.MaxPages, fc.Extract.MaxPages)
	setInt(&cfg.OCRDPI, fc.Extract.OCRDPI)
	setInt(&cfg.OCREnhancedDPI, fc.Extract.OCREnhanced)
	setString(&cfg.OCRLanguage, fc.Extract.OCRLanguage)
	setInt(&cfg.Validity.MinTextLength, fc.Extract.MinTextLength)
	setInt(&cfg.Validity.MinWordCount, fc.Extract.MinWordCount)
	if fc.Extract.MinAlnumRatio != nil {
		cfg.Validity.MinAlnumRatio = *fc.Extract.MinAlnumRatio
	}

	setInt(&cfg.Workers, fc.Workers)
	return nil
}

// ValidateConfig rejects configurations that cannot run.
func ValidateConfig(cfg Config) error {
	switch cfg.CacheBackend {
	case "disk", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q (want disk, redis or memory)", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "disk" && cfg.CacheDir == "" {
		return fmt.Errorf("disk cache backend requires a cache directory")
	}
	if cfg.CacheBackend == "redis" && cfg.RedisAddr == "" {
		return fmt.Errorf("redis cache backend requires a redis address")
	}
	if cfg.ServeAddr == "" && cfg.Input == "" {
		return fmt.Errorf("either an input file or a serve address is required")
	}
	if cfg.RequestInterval < 0 {
		return fmt.Errorf("request interval must not be negative")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if cfg.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative")
	}
	if v := cfg.Validity; v.MinAlnumRatio < 0 || v.MinAlnumRatio > 1 {
		return fmt.Errorf("min alnum ratio must be between 0 and 1")
	}
	if cfg.OCRDPI <= 0 || cfg.OCREnhancedDPI <= 0 {
		return fmt.Errorf("OCR DPI values must be positive")
	}
	return nil
}
