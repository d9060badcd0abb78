// Package cache provides a key-value cache fronting a durable backend
// (Redis) with an in-process fallback store. Callers never observe backend
// availability: every operation degrades to the in-process store the moment
// the backend fails, and the backend is retried in the background until it
// recovers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTTL applies when a caller does not set one.
	DefaultTTL = 5 * time.Minute

	defaultMaxMemoryEntries = 1000
	defaultSweepInterval    = 5 * time.Minute
	defaultRetryDelay       = 5 * time.Second

	tagKeyPrefix = "tags:"
)

// Backend is the durable cache tier. shared/redis.Client implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Config holds cache service configuration
type Config struct {
	Backend          Backend // nil runs the service memory-only
	Logger           *slog.Logger
	DefaultTTL       time.Duration
	MaxMemoryEntries int
	SweepInterval    time.Duration
	RetryDelay       time.Duration
}

// Options tunes a single write.
type Options struct {
	TTL  time.Duration
	Tags []string
}

// Stats is a point-in-time snapshot of the cache service state.
type Stats struct {
	Backend            string `json:"backend"`
	Healthy            bool   `json:"healthy"`
	MemoryCacheSize    int    `json:"memory_cache_size"`
	MaxMemoryCacheSize int    `json:"max_memory_cache_size"`
}

// Service is the two-tier cache. All methods are safe for concurrent use.
type Service struct {
	backend       Backend
	mem           *memoryStore
	logger        *slog.Logger
	defaultTTL    time.Duration
	sweepInterval time.Duration
	retryDelay    time.Duration

	mu           sync.Mutex
	healthy      bool
	retryPending bool
	retryTimer   *time.Timer

	now func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a cache service. Call Start to begin the periodic
// memory sweep and Stop to release it.
func NewService(cfg *Config) *Service {
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	maxEntries := cfg.MaxMemoryEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxMemoryEntries
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		backend:       cfg.Backend,
		mem:           newMemoryStore(maxEntries),
		logger:        logger,
		defaultTTL:    defaultTTL,
		sweepInterval: sweepInterval,
		retryDelay:    retryDelay,
		healthy:       cfg.Backend != nil,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the periodic sweep of the in-process store.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.janitor()
}

// Stop halts the sweep and any pending backend retry.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.mu.Lock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Set stores a value under key. Backend failures are absorbed; the only
// caller-visible error is a value that cannot be serialized.
func (s *Service) Set(ctx context.Context, key string, value any, opts Options) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if len(opts.Tags) > 0 {
		s.indexTags(ctx, key, opts.Tags, ttl)
	}

	s.setRaw(ctx, key, data, ttl)
	return nil
}

// SetWithTags stores a value and registers it under the given tags for
// group invalidation.
func (s *Service) SetWithTags(ctx context.Context, key string, value any, tags []string, opts Options) error {
	opts.Tags = tags
	return s.Set(ctx, key, value, opts)
}

// Get loads the value under key into dest. The boolean reports whether the
// key was found; a miss caused by backend loss is indistinguishable from
// true absence.
func (s *Service) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, ok := s.getRaw(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value: %w", err)
	}
	return true, nil
}

// Has reports whether key exists and has not expired.
func (s *Service) Has(ctx context.Context, key string) bool {
	if s.backendHealthy() {
		ok, err := s.backend.Exists(ctx, key)
		if err == nil {
			if ok {
				return true
			}
		} else {
			s.markUnhealthy(err)
		}
	}
	return s.mem.has(key, s.now())
}

// Delete removes key from both tiers, best-effort.
func (s *Service) Delete(ctx context.Context, key string) {
	if s.backendHealthy() {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.markUnhealthy(err)
		}
	}
	s.mem.delete(key)
}

// Clear drops every entry from both tiers, best-effort.
func (s *Service) Clear(ctx context.Context) {
	if s.backendHealthy() {
		if err := s.backend.Clear(ctx); err != nil {
			s.markUnhealthy(err)
		}
	}
	s.mem.clear()
}

// GetOrSet returns the cached value for key, or invokes produce, stores the
// result, and returns it. Two simultaneous misses may both invoke produce;
// producers must be idempotent.
func (s *Service) GetOrSet(ctx context.Context, key string, dest any, opts Options, produce func(ctx context.Context) (any, error)) error {
	found, err := s.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	value, err := produce(ctx)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, key, value, opts); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// InvalidateByTags removes every key registered under any of the tags,
// along with the tag indexes themselves. Both tiers' index copies are
// consulted, so keys tagged on either side of a backend outage are covered.
// Values that lived only in the backend before an outage cannot be purged
// until the backend returns; their TTL bounds how long they can resurface.
func (s *Service) InvalidateByTags(ctx context.Context, tags []string) {
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag

		keys := s.readTagIndex(ctx, tagKey)
		if len(keys) == 0 {
			s.Delete(ctx, tagKey)
			continue
		}

		for _, key := range keys {
			s.Delete(ctx, key)
		}
		s.Delete(ctx, tagKey)

		s.logger.Debug("Invalidated cache tag",
			slog.String("tag", tag),
			slog.Int("keys", len(keys)),
		)
	}
}

// GetStats returns the current backend/health/occupancy snapshot.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	healthy := s.backend != nil && s.healthy
	s.mu.Unlock()

	backend := "memory"
	if healthy {
		backend = "redis"
	}

	return Stats{
		Backend:            backend,
		Healthy:            healthy,
		MemoryCacheSize:    s.mem.size(),
		MaxMemoryCacheSize: s.mem.maxEntries,
	}
}

// setRaw writes to the backend when healthy and degrades to the in-process
// store on any backend failure.
func (s *Service) setRaw(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if s.backendHealthy() {
		err := s.backend.Set(ctx, key, data, ttl)
		if err == nil {
			return
		}
		s.markUnhealthy(err)
	}
	s.mem.set(key, data, ttl, s.now())
}

// getRaw reads the backend first. A healthy-backend miss still consults the
// in-process store so entries written during an outage stay visible after
// recovery.
func (s *Service) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if s.backendHealthy() {
		data, found, err := s.backend.Get(ctx, key)
		if err == nil {
			if found {
				return data, true
			}
		} else {
			s.markUnhealthy(err)
		}
	}
	return s.mem.get(key, s.now())
}

// indexTags appends key to each tag's reverse index, which is itself stored
// as a cache entry. The index is written to both tiers so it stays readable
// across backend outages in either direction.
func (s *Service) indexTags(ctx context.Context, key string, tags []string, ttl time.Duration) {
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag

		keys := s.readTagIndex(ctx, tagKey)

		present := false
		for _, k := range keys {
			if k == key {
				present = true
				break
			}
		}
		if !present {
			keys = append(keys, key)
		}

		data, err := json.Marshal(keys)
		if err != nil {
			continue
		}
		s.setRaw(ctx, tagKey, data, ttl)
		s.mem.set(tagKey, data, ttl, s.now())
	}
}

// readTagIndex merges a tag's reverse index from both tiers. A key tagged
// while the backend was healthy lives in the backend copy; one tagged during
// an outage lives in the in-process copy.
func (s *Service) readTagIndex(ctx context.Context, tagKey string) []string {
	var keys []string
	seen := make(map[string]struct{})
	merge := func(data []byte) {
		var part []string
		if err := json.Unmarshal(data, &part); err != nil {
			s.logger.Warn("Dropping corrupt tag index",
				slog.String("key", tagKey),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, k := range part {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}

	if s.backendHealthy() {
		data, found, err := s.backend.Get(ctx, tagKey)
		if err != nil {
			s.markUnhealthy(err)
		} else if found {
			merge(data)
		}
	}
	if data, ok := s.mem.get(tagKey, s.now()); ok {
		merge(data)
	}
	return keys
}

func (s *Service) backendHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && s.healthy
}

// markUnhealthy records a backend failure and schedules a reconnect probe.
// Only one probe timer is pending at a time.
func (s *Service) markUnhealthy(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthy {
		s.healthy = false
		s.logger.Warn("Cache backend unavailable, falling back to in-process store",
			slog.String("error", err.Error()),
		)
	}
	if !s.retryPending {
		s.retryPending = true
		s.retryTimer = time.AfterFunc(s.retryDelay, s.retryBackend)
	}
}

// retryBackend probes the backend and restores it on success, or schedules
// the next probe.
func (s *Service) retryBackend() {
	select {
	case <-s.stopChan:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := s.backend.Ping(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.retryTimer = time.AfterFunc(s.retryDelay, s.retryBackend)
		return
	}

	s.retryPending = false
	s.healthy = true
	s.logger.Info("Cache backend recovered")
}

// janitor periodically expires and caps the in-process store.
func (s *Service) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mem.sweep(s.now())
		}
	}
}
