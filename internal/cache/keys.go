package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// URLKey derives a stable cache key from a URL. The URL is normalized first so
// that incidental formatting differences (case of scheme/host, default ports,
// trailing slashes, fragments) map to the same slot.
func URLKey(raw string) string {
	return digest(NormalizeURL(raw))
}

// NormalizeURL canonicalizes a URL for keying. Unparseable input is returned
// trimmed so it still yields a deterministic key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// DateKey derives a cache key for date-scoped entries.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RequestKey derives a cache key for a parameterized upstream call. Parameters
// are serialized in sorted key order so logically identical requests share a
// slot regardless of map iteration order.
func RequestKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(endpoint)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return digest(b.String())
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
