package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxSizeMB is the byte budget used when none is configured
	DefaultMaxSizeMB = 500

	// DefaultTTL is the expiry used when a store passes a zero TTL
	DefaultTTL = 24 * time.Hour

	// budgetFactor keeps admissions slightly under the configured maximum
	budgetFactor = 0.95

	indexFileName = "index.json"
	dataDirName   = "data"
	contentExt    = ".pdf"
	stashSuffix   = ".prev"
	bytesPerMB    = 1024 * 1024
)

// Config contains configuration for a cache Manager
type Config struct {
	// Dir is the directory holding the index and content files
	Dir string

	// MaxSizeMB is the maximum aggregate size of cached content
	MaxSizeMB float64

	// DefaultTTL applies when Store is called with a zero TTL
	DefaultTTL time.Duration

	// SweepInterval runs ClearExpired periodically; zero disables it
	SweepInterval time.Duration

	Logger   *slog.Logger
	Observer Observer
}

// Manager is a durable cache of validated documents.
// Every public method takes the manager's mutex exactly once; helpers with
// the Locked suffix expect it to be held.
type Manager struct {
	mu sync.Mutex

	dir        string
	maxBytes   int64
	defaultTTL time.Duration
	logger     *slog.Logger
	observer   Observer

	index       map[string]*Entry
	currentSize int64

	hits           int64
	misses         int64
	evictions      int64
	expiredCleared int64
	writeConflicts atomic.Int64

	closed    bool
	sweepStop chan struct{}
	sweepOnce sync.Once
	sweepWG   sync.WaitGroup
}

// New creates a cache manager rooted at cfg.Dir, loading any existing index
func New(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	dataPath := filepath.Join(cfg.Dir, dataDirName)
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, wrapFSError("create cache directory", dataPath, err)
	}

	m := &Manager{
		dir:        cfg.Dir,
		maxBytes:   int64(cfg.MaxSizeMB * bytesPerMB),
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger.With("component", "cache"),
		observer:   cfg.Observer,
		index:      make(map[string]*Entry),
		sweepStop:  make(chan struct{}),
	}

	m.mu.Lock()
	err := m.loadIndexLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if cfg.SweepInterval > 0 {
		m.sweepWG.Add(1)
		go m.sweepLoop(cfg.SweepInterval)
	}

	return m, nil
}

// Key returns the cache key for url
func (m *Manager) Key(url string) string {
	return Key(url)
}

// Dir returns the cache root directory
func (m *Manager) Dir() string {
	return m.dir
}

// Store writes content under key after making room for it.
// A zero ttl uses the default TTL; a negative ttl stores an already expired entry.
func (m *Manager) Store(key string, content []byte, ttl time.Duration, metadata map[string]string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	if !m.mu.TryLock() {
		m.writeConflicts.Add(1)
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	incoming := int64(len(content))
	evicted := m.admitLocked(key, incoming)

	path := m.contentPath(key)
	prev, replacing := m.index[key]

	// the previous content stays on disk until the new index is committed
	stash := ""
	if replacing {
		stash = path + stashSuffix
		if err := os.Rename(path, stash); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				m.logger.Warn("failed to stash previous content", "key", key, "error", err)
			}
			stash = ""
		}
	}

	if err := writeFileAtomic(path, content, 0644); err != nil {
		m.unstash(path, stash)
		if evicted > 0 {
			if serr := m.saveIndexLocked(); serr != nil {
				m.logger.Warn("failed to save index after eviction", "error", serr)
			}
		}
		return err
	}

	if replacing {
		m.currentSize -= prev.Size
	}

	now := time.Now()
	m.index[key] = &Entry{
		Key:        key,
		CacheTime:  now,
		AccessTime: now,
		ExpiryTime: now.Add(ttl),
		Checksum:   checksum(content),
		Size:       incoming,
		Metadata:   copyMetadata(metadata),
	}
	m.currentSize += incoming

	if err := m.saveIndexLocked(); err != nil {
		m.currentSize -= incoming
		if replacing {
			m.index[key] = prev
			m.currentSize += prev.Size
		} else {
			delete(m.index, key)
		}
		if stash != "" {
			m.unstash(path, stash)
		} else {
			os.Remove(path)
		}
		return fmt.Errorf("failed to persist cache index: %w", err)
	}
	if stash != "" {
		if err := os.Remove(stash); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to remove stashed content", "path", stash, "error", err)
		}
	}

	m.logger.Debug("cached document", "key", key, "size", incoming, "expires", now.Add(ttl))
	m.updateObserverLocked()
	return nil
}

// admitLocked evicts least recently accessed entries until incoming bytes fit
// the budget or nothing else can be evicted. It returns the number evicted.
func (m *Manager) admitLocked(key string, incoming int64) int {
	budget := int64(float64(m.maxBytes) * budgetFactor)

	current := m.currentSize
	if prev, ok := m.index[key]; ok {
		current -= prev.Size
	}

	evicted := 0
	for current+incoming > budget {
		victim := m.oldestLocked(key)
		if victim == nil {
			break
		}
		current -= victim.Size
		m.removeLocked(victim.Key)
		m.evictions++
		evicted++
		m.observer.RecordCacheEviction()
		m.logger.Info("evicted cache entry", "key", victim.Key, "size", victim.Size)
	}

	if current+incoming > budget {
		m.logger.Warn("cache over budget after eviction",
			"key", key, "incoming", incoming, "current", current, "budget", budget)
	}
	return evicted
}

// oldestLocked returns the entry with the oldest access time, ties broken by
// cache time, ignoring skip
func (m *Manager) oldestLocked(skip string) *Entry {
	var oldest *Entry
	for k, e := range m.index {
		if k == skip {
			continue
		}
		if oldest == nil ||
			e.AccessTime.Before(oldest.AccessTime) ||
			(e.AccessTime.Equal(oldest.AccessTime) && e.CacheTime.Before(oldest.CacheTime)) {
			oldest = e
		}
	}
	return oldest
}

// IsCached reports whether both the index record and content file exist
func (m *Manager) IsCached(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[key]; !ok {
		return false
	}
	_, err := os.Stat(m.contentPath(key))
	return err == nil
}

// IsExpired reports true when key has no record or is past its expiry
func (m *Manager) IsExpired(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.index[key]
	return !ok || entry.Expired(time.Now())
}

// Get returns cached content for key. Misses and expired entries return
// false without evicting; hits refresh the access time.
func (m *Manager) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false
	}

	now := time.Now()
	entry, ok := m.index[key]
	if !ok || entry.Expired(now) {
		m.recordMissLocked()
		return nil, false
	}

	data, err := os.ReadFile(m.contentPath(key))
	if err != nil {
		m.logger.Warn("cached content unreadable", "key", key, "error", err)
		m.recordMissLocked()
		return nil, false
	}

	entry.AccessTime = now
	if err := m.saveIndexLocked(); err != nil {
		m.logger.Warn("failed to persist access time", "key", key, "error", err)
	}

	m.hits++
	m.observer.RecordCacheHit()
	return data, true
}

func (m *Manager) recordMissLocked() {
	m.misses++
	m.observer.RecordCacheMiss()
}

// Expiry returns the expiry time recorded for key
func (m *Manager) Expiry(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.index[key]
	if !ok {
		return time.Time{}, false
	}
	return entry.ExpiryTime, true
}

// Entry returns a copy of the metadata recorded for key
func (m *Manager) Entry(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// Keys returns every indexed key in sorted order, expired ones included
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.index))
	for k := range m.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearExpired removes every expired entry and returns how many were removed
func (m *Manager) ClearExpired() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	return m.clearExpiredLocked()
}

func (m *Manager) clearExpiredLocked() (int, error) {
	now := time.Now()
	var expired []string
	for k, e := range m.index {
		if e.Expired(now) {
			expired = append(expired, k)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	for _, k := range expired {
		m.removeLocked(k)
	}
	m.expiredCleared += int64(len(expired))
	m.observer.RecordCacheExpiration(len(expired))
	m.updateObserverLocked()

	m.logger.Info("cleared expired cache entries", "count", len(expired))
	if err := m.saveIndexLocked(); err != nil {
		return len(expired), fmt.Errorf("failed to persist cache index: %w", err)
	}
	return len(expired), nil
}

// Remove deletes key from the cache. Removing a missing key is not an error.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.index[key]; !ok {
		return nil
	}

	m.removeLocked(key)
	m.updateObserverLocked()
	if err := m.saveIndexLocked(); err != nil {
		return fmt.Errorf("failed to persist cache index: %w", err)
	}
	return nil
}

// VerifyIntegrity recomputes the checksum of the content on disk and
// compares it with the indexed value
func (m *Manager) VerifyIntegrity(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.index[key]
	if !ok {
		return ErrNotCached
	}

	data, err := os.ReadFile(m.contentPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &IntegrityError{Key: key, Expected: entry.Checksum, Actual: "missing"}
		}
		return wrapFSError("read", m.contentPath(key), err)
	}

	if actual := checksum(data); actual != entry.Checksum {
		return &IntegrityError{Key: key, Expected: entry.Checksum, Actual: actual}
	}
	return nil
}

// ValidateIntegrity reports whether key is cached and its content matches its checksum
func (m *Manager) ValidateIntegrity(key string) bool {
	return m.VerifyIntegrity(key) == nil
}

// Stats returns cache statistics
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Hits:                     m.hits,
		Misses:                   m.misses,
		TotalEntries:             len(m.index),
		CurrentSizeMB:            float64(m.currentSize) / bytesPerMB,
		MaxSizeMB:                float64(m.maxBytes) / bytesPerMB,
		EvictionsPerformed:       m.evictions,
		ExpiredEntriesCleared:    m.expiredCleared,
		ConcurrentWriteConflicts: m.writeConflicts.Load(),
	}
}

// SizeBytes returns the aggregate size of cached content
func (m *Manager) SizeBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSize
}

// Shutdown stops background sweeps, optionally clears expired entries and
// flushes the index. Later mutating calls return ErrClosed.
func (m *Manager) Shutdown(cleanupOnShutdown bool) error {
	m.sweepOnce.Do(func() { close(m.sweepStop) })
	m.sweepWG.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	var errs []error
	if cleanupOnShutdown {
		if _, err := m.clearExpiredLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.saveIndexLocked(); err != nil {
		errs = append(errs, err)
	}
	m.closed = true

	return errors.Join(errs...)
}

// sweepLoop periodically removes expired entries
func (m *Manager) sweepLoop(interval time.Duration) {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.ClearExpired(); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Warn("expired entry sweep failed", "error", err)
			}
		case <-m.sweepStop:
			return
		}
	}
}

// unstash moves stashed content back over path
func (m *Manager) unstash(path, stash string) {
	if stash == "" {
		return
	}
	if err := os.Rename(stash, path); err != nil {
		m.logger.Warn("failed to restore previous content", "path", path, "error", err)
	}
}

// removeLocked deletes the content file and index record for key
func (m *Manager) removeLocked(key string) {
	entry, ok := m.index[key]
	if !ok {
		return
	}
	if err := os.Remove(m.contentPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove cached content", "key", key, "error", err)
	}
	m.currentSize -= entry.Size
	delete(m.index, key)
}

func (m *Manager) updateObserverLocked() {
	m.observer.UpdateCacheStats(m.currentSize, len(m.index))
}

// contentPath returns the content file for key, sharded by its first two characters
func (m *Manager) contentPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(m.dir, dataDirName, shard, key+contentExt)
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.dir, indexFileName)
}

// loadIndexLocked reads the index, dropping records whose content file is gone.
// A corrupt index is logged and replaced by an empty one.
func (m *Manager) loadIndexLocked() error {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return wrapFSError("read", m.indexPath(), err)
	}

	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Warn("cache index unreadable, starting empty", "path", m.indexPath(), "error", err)
		return nil
	}

	dropped := 0
	for key, entry := range entries {
		if entry == nil || !validKey(key) {
			dropped++
			continue
		}
		if _, err := os.Stat(m.contentPath(key)); err != nil {
			dropped++
			continue
		}
		entry.Key = key
		m.index[key] = entry
		m.currentSize += entry.Size
	}

	if dropped > 0 {
		m.logger.Info("dropped stale cache index records", "count", dropped)
		if err := m.saveIndexLocked(); err != nil {
			return err
		}
	}
	m.updateObserverLocked()
	return nil
}

// saveIndexLocked rewrites the whole index atomically
func (m *Manager) saveIndexLocked() error {
	data, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	return writeFileAtomic(m.indexPath(), data, 0644)
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// validKey accepts keys that are safe to use as file names
func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, c := range key {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
