// Package settings stores user configuration for the scanner: the backend
// API base URL and the notification preference. Values persist across runs
// on disk, with runtime overrides taking priority.
package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
)

// Keys understood by the store.
const (
	KeyAPIURL        = "apiUrl"
	KeyNotifications = "notificationsEnabled"
)

// Defaults applied when a key has never been written.
const (
	DefaultAPIURL        = "http://localhost:8000"
	DefaultNotifications = true
)

// Store provides read-through persisted settings with runtime overrides.
type Store struct {
	cache *sfcache.TieredCache[string, string]

	mu       sync.RWMutex
	overlay  map[string]string
	defaults map[string]string
}

// New creates a Store persisted under ~/.cache/deepscan (or the OS temp dir
// when no user cache directory exists).
func New() (*Store, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(filepath.Join(cacheDir, "deepscan"))
}

// NewWithPath creates a Store persisted at the given directory.
func NewWithPath(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	persist, err := localfs.New[string, string]("deepscan", path)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}
	tc, err := sfcache.NewTiered[string, string](persist)
	if err != nil {
		return nil, fmt.Errorf("create settings store: %w", err)
	}
	return newStore(tc), nil
}

// NewMemory creates a Store with no persistence. Useful for tests.
func NewMemory() *Store {
	tc, err := sfcache.NewTiered[string, string](null.New[string, string]())
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return newStore(tc)
}

func newStore(tc *sfcache.TieredCache[string, string]) *Store {
	return &Store{
		cache:   tc,
		overlay: make(map[string]string),
		defaults: map[string]string{
			KeyAPIURL:        DefaultAPIURL,
			KeyNotifications: strconv.FormatBool(DefaultNotifications),
		},
	}
}

// Get returns the value for key: runtime override first, then the persisted
// value, then the default.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if v, ok := s.overlay[key]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	def := s.defaults[key]
	s.mu.RUnlock()

	v, err := s.cache.GetSet(ctx, key, func(context.Context) (string, error) {
		return def, nil
	})
	if err != nil {
		return def, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return v, nil
}

// Set overrides key for the lifetime of this process.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay[key] = value
}

// APIURL returns the backend analyzer base URL.
func (s *Store) APIURL(ctx context.Context) string {
	v, err := s.Get(ctx, KeyAPIURL)
	if err != nil || v == "" {
		return DefaultAPIURL
	}
	return v
}

// NotificationsEnabled reports whether scan notifications are on.
func (s *Store) NotificationsEnabled(ctx context.Context) bool {
	v, err := s.Get(ctx, KeyNotifications)
	if err != nil {
		return DefaultNotifications
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return DefaultNotifications
	}
	return b
}

// Close releases the underlying store.
func (s *Store) Close() error {
	return s.cache.Close()
}
