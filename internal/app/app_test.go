package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

const samplePage = `<!doctype html><html><body><main>
<p>Notice of proposed rulemaking concerning the registration of broker
dealers under section fifteen of the Exchange Act. Interested persons are
invited to submit written comments within sixty days of publication. The
Commission will consider all submissions before adopting a final rule.</p>
</main></body></html>`

func TestAppBatchRun(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "urls.txt")
	urlList := "# gazette sources\n" + ts.URL + "/a\n\n" + ts.URL + "/b\n"
	if err := os.WriteFile(input, []byte(urlList), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "out.jsonl")

	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Output = output
	cfg.CacheBackend = "memory"
	cfg.RequestInterval = time.Millisecond
	cfg.Workers = 2
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var lines []batchLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line batchLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad output line %q: %v", sc.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d output lines, want 2", len(lines))
	}
	for _, line := range lines {
		if line.Error != "" {
			t.Errorf("%s: unexpected error %q", line.URL, line.Error)
			continue
		}
		if line.Document == nil {
			t.Errorf("%s: missing document", line.URL)
			continue
		}
		if line.Document.Method != "html" {
			t.Errorf("%s: method = %q, want html", line.URL, line.Document.Method)
		}
		if !strings.Contains(line.Document.Text, "proposed rulemaking") {
			t.Errorf("%s: extracted text missing expected content", line.URL)
		}
	}
}

func TestAppBatchRunRecordsPerURLFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "urls.txt")
	body := ts.URL + "/missing\n" + ts.URL + "/ok\n"
	if err := os.WriteFile(input, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "out.jsonl")

	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Output = output
	cfg.CacheBackend = "memory"
	cfg.RequestInterval = time.Millisecond
	cfg.MaxRetries = 0
	cfg.Workers = 1

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run should not fail on per-document errors: %v", err)
	}

	raw, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	outLines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(outLines) != 2 {
		t.Fatalf("got %d lines, want 2", len(outLines))
	}

	var first, second batchLine
	if err := json.Unmarshal([]byte(outLines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(outLines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first.Error == "" {
		t.Error("404 URL should carry an error")
	}
	if second.Error != "" || second.Document == nil {
		t.Errorf("healthy URL should carry a document, got error %q", second.Error)
	}
}

func TestAppRedisBackendBatchRun(t *testing.T) {
	mr := miniredis.RunT(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "urls.txt")
	if err := os.WriteFile(input, []byte(ts.URL+"/notice\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "out.jsonl")

	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Output = output
	cfg.CacheBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.RedisPoolSize = 2
	cfg.RequestInterval = time.Millisecond
	cfg.Workers = 1
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New with redis backend: %v", err)
	}
	defer a.Close()

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawText bool
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "docpipe:text:") {
			sawText = true
		}
	}
	if !sawText {
		t.Errorf("no extraction cached in redis; keys: %v", mr.Keys())
	}
}

func TestReadURLListSkipsCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	body := "# header\n\nhttps://a.example/x\n  https://b.example/y  \n#tail\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := readURLList(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://a.example/x", "https://b.example/y"}
	if len(urls) != len(want) {
		t.Fatalf("got %d URLs, want %d: %v", len(urls), len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}
