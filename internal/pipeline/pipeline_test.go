package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/regwatch/docpipe/internal/cache"
	"github.com/regwatch/docpipe/internal/extract"
	"github.com/regwatch/docpipe/internal/fetch"
	"github.com/regwatch/docpipe/internal/retry"
)

// recordingLimiter tracks which inputs permits were requested for.
type recordingLimiter struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLimiter) Acquire(_ context.Context, originOrURL string) error {
	l.mu.Lock()
	l.calls = append(l.calls, originOrURL)
	l.mu.Unlock()
	return nil
}

// stubExtractor returns a fixed result and counts invocations.
type stubExtractor struct {
	res   extract.Result
	calls atomic.Int64
}

func (s *stubExtractor) Extract(context.Context, []byte, int) extract.Result {
	s.calls.Add(1)
	return s.res
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		Match:         fetch.IsTransient,
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      5 * time.Millisecond,
	}
}

func newPipeline(fetcher Fetcher, limiter Limiter, ex Extractor) *Pipeline {
	return &Pipeline{
		Cache:       cache.NewStore(cache.NewMemoryBackend(), nil),
		Limiter:     limiter,
		Fetcher:     fetcher,
		Extractor:   ex,
		FetchPolicy: fastPolicy(),
	}
}

func TestProcess_EndToEndAndSecondRequestHitsCache(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	ex := &stubExtractor{res: extract.Result{Text: "decision text", Method: "structured"}}
	p := newPipeline(&fetch.Client{PerRequestTimeout: 2 * time.Second}, limiter, ex)
	ctx := context.Background()

	doc, err := p.Process(ctx, srv.URL+"/notice.pdf")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if doc.Text != "decision text" || doc.Method != "structured" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.FromCache {
		t.Fatalf("first request must not report FromCache")
	}
	if fetches.Load() != 1 {
		t.Fatalf("fetches = %d, want 1", fetches.Load())
	}
	if len(limiter.calls) != 1 || !strings.Contains(limiter.calls[0], srv.URL) {
		t.Fatalf("limiter calls = %v", limiter.calls)
	}

	// Raw bytes must be cached under the URL key.
	if _, ok := p.Cache.Get(ctx, cache.NamespaceRaw, cache.URLKey(srv.URL+"/notice.pdf")); !ok {
		t.Fatalf("raw bytes not cached")
	}

	doc2, err := p.Process(ctx, srv.URL+"/notice.pdf")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !doc2.FromCache || doc2.Text != "decision text" {
		t.Fatalf("second request should come from cache: %+v", doc2)
	}
	if fetches.Load() != 1 {
		t.Fatalf("second request performed network calls: %d", fetches.Load())
	}
	if ex.calls.Load() != 1 {
		t.Fatalf("extractor re-invoked on cached result: %d", ex.calls.Load())
	}
}

func TestProcess_RetriesTransientFetch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(503)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "ok text", Method: "structured"}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)

	if _, err := p.Process(context.Background(), srv.URL); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("server saw %d calls, want 3", calls.Load())
	}
}

func TestProcess_FetchErrorSurfacesAfterExhaustion(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(502)
	}))
	defer srv.Close()

	ex := &stubExtractor{}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)

	_, err := p.Process(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	var se *fetch.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError in chain, got %v", err)
	}
	if calls.Load() != 3 { // initial attempt + 2 retries
		t.Fatalf("server saw %d calls, want 3", calls.Load())
	}
	if ex.calls.Load() != 0 {
		t.Fatalf("extractor must not run after fetch failure")
	}
}

func TestProcess_NonTransientFetchErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(404)
	}))
	defer srv.Close()

	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, &stubExtractor{})
	if _, err := p.Process(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("404 retried: %d calls", calls.Load())
	}
}

func TestProcess_FailedExtractionIsCached(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 scanned garbage"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "", Method: extract.MethodFailed}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)
	ctx := context.Background()

	doc, err := p.Process(ctx, srv.URL)
	if err != nil {
		t.Fatalf("failed extraction must not be an error: %v", err)
	}
	if doc.Method != extract.MethodFailed || doc.Text != "" {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	doc2, err := p.Process(ctx, srv.URL)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !doc2.FromCache {
		t.Fatalf("negative result not served from cache")
	}
	if ex.calls.Load() != 1 {
		t.Fatalf("extractor re-ran for a cached negative result: %d", ex.calls.Load())
	}
	if fetches.Load() != 1 {
		t.Fatalf("network re-fetched for a cached negative result: %d", fetches.Load())
	}
}

func TestProcess_RawCacheSkipsNetworkButExtracts(t *testing.T) {
	ex := &stubExtractor{res: extract.Result{Text: "from raw", Method: "layout"}}
	limiter := &recordingLimiter{}
	p := newPipeline(&fetch.Client{}, limiter, ex)
	ctx := context.Background()

	url := "https://example.gov/archived.pdf"
	p.Cache.Set(ctx, cache.NamespaceRaw, cache.URLKey(url), []byte("%PDF-1.4 stored"), 0)

	doc, err := p.Process(ctx, url)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if doc.Text != "from raw" || !doc.FromCache {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if len(limiter.calls) != 0 {
		t.Fatalf("limiter consulted despite raw cache hit: %v", limiter.calls)
	}
	if ex.calls.Load() != 1 {
		t.Fatalf("extractor calls = %d, want 1", ex.calls.Load())
	}
}

func TestProcess_CachedResultKeepsDocumentInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body of a scanned decision"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "decision", Method: "ocr"}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)
	ctx := context.Background()

	doc, err := p.Process(ctx, srv.URL)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !doc.Info.IsPDF || doc.Info.SizeBytes == 0 {
		t.Fatalf("first request lost document metadata: %+v", doc.Info)
	}

	doc2, err := p.Process(ctx, srv.URL)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !doc2.FromCache {
		t.Fatalf("second request should come from cache")
	}
	if doc2.Info != doc.Info {
		t.Fatalf("cached result changed metadata: first %+v, cached %+v", doc.Info, doc2.Info)
	}
}

func TestProcess_CorruptTextEntryRecomputed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "fresh", Method: "structured"}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)
	ctx := context.Background()

	key := cache.URLKey(srv.URL)
	p.Cache.Set(ctx, cache.NamespaceText, key, []byte("{not json"), 0)

	doc, err := p.Process(ctx, srv.URL)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if doc.Text != "fresh" || doc.FromCache {
		t.Fatalf("corrupt entry not recomputed: %+v", doc)
	}
}

func TestProcess_ConcurrentSameURLSharesOneFetchAndExtraction(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "shared", Method: "structured"}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	docs := make([]Document, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs[i], errs[i] = p.Process(context.Background(), srv.URL)
		}()
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if docs[i].Text != "shared" {
			t.Fatalf("caller %d got %+v", i, docs[i])
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("concurrent callers performed %d fetches, want 1", got)
	}
	if got := ex.calls.Load(); got != 1 {
		t.Fatalf("concurrent callers ran %d extractions, want 1", got)
	}
}

func TestProcessAll_IsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	ex := &stubExtractor{res: extract.Result{Text: "t", Method: "structured"}}
	p := newPipeline(&fetch.Client{}, &recordingLimiter{}, ex)

	urls := []string{srv.URL + "/good1", srv.URL + "/bad", srv.URL + "/good2"}
	outcomes := p.ProcessAll(context.Background(), urls, 2)
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("good URLs failed: %v / %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil {
		t.Fatalf("bad URL should carry its error")
	}
	for i, o := range outcomes {
		if o.URL != urls[i] {
			t.Fatalf("outcome order broken: %v", o)
		}
	}
}
