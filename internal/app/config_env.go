package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnvToConfig overlays DOCPIPE_* environment variables on cfg.
// Unset variables leave cfg untouched; malformed values are an error
// rather than silently ignored.
func ApplyEnvToConfig(cfg *Config) error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setDur := func(dst *time.Duration, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	setBool := func(dst *bool, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString(&cfg.CacheBackend, "DOCPIPE_CACHE_BACKEND")
	setString(&cfg.CacheDir, "DOCPIPE_CACHE_DIR")
	setString(&cfg.RedisAddr, "DOCPIPE_REDIS_ADDR")
	setString(&cfg.RedisPassword, "DOCPIPE_REDIS_PASSWORD")
	if err := setInt(&cfg.RedisDB, "DOCPIPE_REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.RedisPoolSize, "DOCPIPE_REDIS_POOL_SIZE"); err != nil {
		return err
	}
	if err := setDur(&cfg.TTLRaw, "DOCPIPE_TTL_RAW"); err != nil {
		return err
	}
	if err := setDur(&cfg.TTLText, "DOCPIPE_TTL_TEXT"); err != nil {
		return err
	}
	if err := setDur(&cfg.TTLAPI, "DOCPIPE_TTL_API"); err != nil {
		return err
	}
	if err := setDur(&cfg.RequestInterval, "DOCPIPE_REQUEST_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&cfg.MaxRetries, "DOCPIPE_MAX_RETRIES"); err != nil {
		return err
	}
	if err := setDur(&cfg.RetryInitialDelay, "DOCPIPE_RETRY_INITIAL_DELAY"); err != nil {
		return err
	}
	if err := setDur(&cfg.RetryMaxDelay, "DOCPIPE_RETRY_MAX_DELAY"); err != nil {
		return err
	}
	if err := setBool(&cfg.RetryJitter, "DOCPIPE_RETRY_JITTER"); err != nil {
		return err
	}
	setString(&cfg.UserAgent, "DOCPIPE_USER_AGENT")
	if err := setDur(&cfg.RequestTimeout, "DOCPIPE_REQUEST_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&cfg.MaxPages, "DOCPIPE_MAX_PAGES"); err != nil {
		return err
	}
	if err := setInt(&cfg.OCRDPI, "DOCPIPE_OCR_DPI"); err != nil {
		return err
	}
	if err := setInt(&cfg.OCREnhancedDPI, "DOCPIPE_OCR_ENHANCED_DPI"); err != nil {
		return err
	}
	setString(&cfg.OCRLanguage, "DOCPIPE_OCR_LANGUAGE")
	if err := setInt(&cfg.Workers, "DOCPIPE_WORKERS"); err != nil {
		return err
	}
	return nil
}
