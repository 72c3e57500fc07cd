package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// diskMeta is the JSON sidecar stored next to each entry body.
type diskMeta struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DiskBackend stores entries under Dir/<namespace>/<key>.body with a
// <key>.meta.json sidecar carrying the expiry. Expiry is passive: expired
// entries are simply not returned, and Purge can reclaim them. No further
// eviction policy is included.
type DiskBackend struct {
	Dir string

	// now is swappable for tests.
	now func() time.Time
}

func (d *DiskBackend) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now().UTC()
}

func (d *DiskBackend) ensureDir(namespace string) (string, error) {
	if d == nil || d.Dir == "" {
		return "", errors.New("cache dir not configured")
	}
	dir := filepath.Join(d.Dir, namespace)
	return dir, os.MkdirAll(dir, 0o755)
}

func (d *DiskBackend) bodyPath(dir, key string) string { return filepath.Join(dir, key+".body") }
func (d *DiskBackend) metaPath(dir, key string) string { return filepath.Join(dir, key+".meta.json") }

// Get returns the stored body when present and unexpired.
func (d *DiskBackend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	dir, err := d.ensureDir(namespace)
	if err != nil {
		return nil, false, err
	}
	mb, err := os.ReadFile(d.metaPath(dir, key))
	if err != nil {
		return nil, false, nil
	}
	var meta diskMeta
	if err := json.Unmarshal(mb, &meta); err != nil {
		return nil, false, nil
	}
	if !d.clock().Before(meta.ExpiresAt) {
		return nil, false, nil
	}
	b, err := os.ReadFile(d.bodyPath(dir, key))
	if err != nil {
		return nil, false, nil
	}
	return b, true, nil
}

// Set writes body first, then the meta sidecar via rename so a reader never
// observes a meta file pointing at a missing body.
func (d *DiskBackend) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	dir, err := d.ensureDir(namespace)
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.bodyPath(dir, key), value, 0o644); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	now := d.clock()
	meta := diskMeta{Namespace: namespace, Key: key, SavedAt: now, ExpiresAt: now.Add(ttl)}
	tmp := d.metaPath(dir, key) + ".tmp"
	mb, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(tmp, mb, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, d.metaPath(dir, key))
}

// Delete removes both body and meta for the entry.
func (d *DiskBackend) Delete(_ context.Context, namespace, key string) error {
	dir, err := d.ensureDir(namespace)
	if err != nil {
		return err
	}
	_ = os.Remove(d.metaPath(dir, key))
	_ = os.Remove(d.bodyPath(dir, key))
	return nil
}

// Purge removes entries whose expiry has passed and returns the count removed.
// It inspects only meta sidecars to decide expiration.
func (d *DiskBackend) Purge() (int, error) {
	if d == nil || d.Dir == "" {
		return 0, nil
	}
	now := d.clock()
	removed := 0
	err := filepath.WalkDir(d.Dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".meta.json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable
		}
		var meta diskMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			return nil // skip malformed
		}
		if now.Before(meta.ExpiresAt) {
			return nil
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
		return nil
	})
	return removed, err
}

// Clear removes the cache directory and all contents, recreating it so the
// location remains a valid empty cache.
func Clear(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
