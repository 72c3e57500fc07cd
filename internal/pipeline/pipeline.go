// Package pipeline wires the cache, rate limiter, retry executor, fetcher,
// and extractor into the per-document fetch-extract flow.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/regwatch/docpipe/internal/cache"
	"github.com/regwatch/docpipe/internal/extract"
	"github.com/regwatch/docpipe/internal/metrics"
	"github.com/regwatch/docpipe/internal/retry"
)

// Fetcher performs a single network attempt; the pipeline supplies retries.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Limiter grants per-origin permits.
type Limiter interface {
	Acquire(ctx context.Context, originOrURL string) error
}

// Extractor converts raw bytes to text. It never fails; a fully failed
// extraction carries the failed method tag.
type Extractor interface {
	Extract(ctx context.Context, data []byte, maxPages int) extract.Result
}

// Document is the pipeline's output for one URL.
type Document struct {
	URL    string               `json:"url"`
	Text   string               `json:"text"`
	Method string               `json:"method"`
	Info   extract.DocumentInfo `json:"info"`
	// FromCache marks results served without touching the network.
	FromCache bool `json:"from_cache"`
}

// Pipeline is safe for concurrent use; all shared state lives in the cache
// store and the limiter's buckets.
type Pipeline struct {
	Cache     *cache.Store
	Limiter   Limiter
	Fetcher   Fetcher
	Extractor Extractor
	// FetchPolicy wraps each network fetch. Usually retry.NetworkProfile
	// matched against fetch.IsTransient.
	FetchPolicy retry.Policy
	// MaxPages bounds extraction work per document. Zero means all pages.
	MaxPages int
	Metrics  *metrics.Metrics
}

// textEntry is the persisted form of an extraction in the text namespace.
// Info rides along so cached hits report the same document metadata as the
// request that produced them.
type textEntry struct {
	extract.Result
	Info extract.DocumentInfo `json:"info"`
}

// Process runs the fetch-extract flow for one URL. The only error surface is
// a fetch that fails after retries are exhausted (or a non-transient fetch
// error); extraction failures come back as a Document tagged "failed".
// Concurrent calls for the same URL share one fetch and one extraction.
func (p *Pipeline) Process(ctx context.Context, url string) (Document, error) {
	key := cache.URLKey(url)

	// Two rounds at most: a corrupt cached entry is invalidated and the
	// second round recomputes it from scratch.
	for attempt := 0; attempt < 2; attempt++ {
		computed, fetched := false, false
		b, err := p.Cache.GetOrCompute(ctx, cache.NamespaceText, key, func(ctx context.Context) ([]byte, error) {
			computed = true
			p.Metrics.CacheMiss(cache.NamespaceText)
			return p.compute(ctx, url, key, &fetched)
		}, 0)
		if err != nil {
			p.Metrics.FetchFailure()
			return Document{}, fmt.Errorf("fetch %s: %w", url, err)
		}

		var entry textEntry
		if err := json.Unmarshal(b, &entry); err != nil || entry.Method == "" {
			p.Cache.Invalidate(ctx, cache.NamespaceText, key)
			continue
		}
		if !computed {
			p.Metrics.CacheHit(cache.NamespaceText)
		}
		return Document{
			URL:       url,
			Text:      entry.Text,
			Method:    entry.Method,
			Info:      entry.Info,
			FromCache: !fetched,
		}, nil
	}
	return Document{}, fmt.Errorf("process %s: unreadable cache entry after recompute", url)
}

// compute runs the fetch-extract flow on a text-cache miss and returns the
// serialized entry for caching. fetched is set when the network was touched.
func (p *Pipeline) compute(ctx context.Context, url, key string, fetched *bool) ([]byte, error) {
	raw, err := p.rawBytes(ctx, url, key, fetched)
	if err != nil {
		return nil, err
	}

	res := p.Extractor.Extract(ctx, raw, p.MaxPages)
	p.Metrics.Extraction(res.Method)
	if res.Method == extract.MethodFailed {
		log.Warn().Str("url", url).Msg("no strategy produced valid text")
	}

	// A negative result is still a result: caching it stops the pipeline
	// from re-attempting a document already known to be unextractable.
	return json.Marshal(textEntry{Result: res, Info: extract.Info(raw)})
}

// rawBytes returns the document body, consulting the raw cache before paying
// for a rate-limited, retried network fetch. Concurrent misses for the same
// key collapse into a single fetch.
func (p *Pipeline) rawBytes(ctx context.Context, url, key string, fetched *bool) ([]byte, error) {
	b, err := p.Cache.GetOrCompute(ctx, cache.NamespaceRaw, key, func(ctx context.Context) ([]byte, error) {
		*fetched = true
		p.Metrics.CacheMiss(cache.NamespaceRaw)

		if err := p.Limiter.Acquire(ctx, url); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		start := time.Now()
		body, err := retry.Do(ctx, p.FetchPolicy, func(ctx context.Context) ([]byte, error) {
			p.Metrics.FetchAttempt()
			b, _, err := p.Fetcher.Get(ctx, url)
			return b, err
		})
		if err != nil {
			return nil, err
		}
		p.Metrics.FetchDone(time.Since(start))
		return body, nil
	}, 0)
	if err != nil {
		return nil, err
	}
	if !*fetched {
		p.Metrics.CacheHit(cache.NamespaceRaw)
	}
	return b, nil
}

// Outcome pairs one URL with its result or error inside a batch.
type Outcome struct {
	URL string
	Doc Document
	Err error
}

// ProcessAll fans the URLs out over at most workers concurrent Process calls.
// Failures are collected per URL, never aborting the rest of the batch.
func (p *Pipeline) ProcessAll(ctx context.Context, urls []string, workers int) []Outcome {
	if workers <= 0 {
		workers = 4
	}
	outcomes := make([]Outcome, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range urls {
		g.Go(func() error {
			doc, err := p.Process(ctx, u)
			if err != nil {
				log.Warn().Err(err).Str("url", u).Msg("document failed; continuing batch")
			}
			outcomes[i] = Outcome{URL: u, Doc: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
