// Package modelcache downloads model files and keeps them on disk under a
// byte budget. Concurrent requests for the same set share one download,
// corrupt payloads are retried once and never committed, and cold entries
// are evicted least-recently-used first.
package modelcache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"brickkit/internal/common/config"
	"brickkit/internal/common/database"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/common/metrics"
	"brickkit/internal/models"
)

var (
	ErrDownloadFailed  = errors.New("DOWNLOAD_FAILED")
	ErrDownloadCorrupt = errors.New("DOWNLOAD_CORRUPT")
	ErrNoVariants      = errors.New("NO_VARIANTS")
)

const indexFileName = "index.json"
const lastAccessKeyPrefix = "modelcache:lastaccess:"

// Downloader lists and fetches model file variants, normally the catalog
// client.
type Downloader interface {
	Variants(ctx context.Context, setNumber string) ([]models.ModelVariant, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	Dir             string
	MaxBytes        int64
	TTL             time.Duration
	DownloadTimeout time.Duration
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		Dir:             cfg.Cache.Dir,
		MaxBytes:        cfg.Cache.MaxBytes,
		TTL:             config.GetDuration(cfg.Cache.TTL),
		DownloadTimeout: config.GetDuration(cfg.Cache.DownloadTimeout),
	}
}

type entry struct {
	model models.CachedModel
	elem  *list.Element // position in the LRU list; value is the fingerprint
	refs  int           // in-flight requests holding this entry
}

type Cache struct {
	config     *Config
	downloader Downloader
	redis      *database.RedisClient // nil when no mirror is configured
	logger     logger.Logger

	group singleflight.Group

	mu         sync.Mutex
	entries    map[string]*entry
	lru        *list.List // front = most recently used
	totalBytes int64
}

func New(cfg *Config, downloader Downloader, redis *database.RedisClient, log logger.Logger) *Cache {
	return &Cache{
		config:     cfg,
		downloader: downloader,
		redis:      redis,
		logger:     log.WithFields(map[string]interface{}{"component": "modelcache"}),
		entries:    make(map[string]*entry),
		lru:        list.New(),
	}
}

// Fingerprint derives the stable cache key for a set number.
func Fingerprint(setNumber string) string {
	sum := sha256.Sum256([]byte(setNumber))
	return hex.EncodeToString(sum[:])
}

// Init creates the cache directory and loads the persisted index. Entries
// whose files vanished are dropped silently.
func (c *Cache) Init() error {
	if err := os.MkdirAll(c.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(c.config.Dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index: %w", err)
	}

	var persisted map[string]models.CachedModel
	if err := json.Unmarshal(raw, &persisted); err != nil {
		c.logger.Warn("cache index unreadable, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	loaded := make([]models.CachedModel, 0, len(persisted))
	for _, m := range persisted {
		info, err := os.Stat(m.Path)
		if err != nil || info.Size() == 0 {
			continue
		}
		m.Size = info.Size()
		loaded = append(loaded, m)
	}
	// Oldest first so the LRU front ends up holding the most recent entry.
	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].LastAccess.Before(loaded[j].LastAccess)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range loaded {
		e := &entry{model: m}
		e.elem = c.lru.PushFront(m.Fingerprint)
		c.entries[m.Fingerprint] = e
		c.totalBytes += m.Size
	}
	metrics.CacheBytes.Set(float64(c.totalBytes))

	c.logger.Info("cache index loaded", map[string]interface{}{
		"entries":    len(c.entries),
		"totalBytes": c.totalBytes,
	})
	return nil
}

// Close flushes the index to disk.
func (c *Cache) Close() error {
	c.mu.Lock()
	persisted := make(map[string]models.CachedModel, len(c.entries))
	for fp, e := range c.entries {
		persisted[fp] = e.model
	}
	c.mu.Unlock()

	raw, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.config.Dir, indexFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	return nil
}

// Acquire returns a cached model for the candidate, downloading it if
// needed. The entry is pinned against eviction until Release is called with
// the same fingerprint. Concurrent callers for one set share a single
// download; the download itself runs detached from any caller's context so
// one caller's cancel cannot starve the rest.
func (c *Cache) Acquire(ctx context.Context, candidate *models.CandidateModel) (*models.CachedModel, error) {
	fp := Fingerprint(candidate.SetNumber)

	if m := c.hit(fp); m != nil {
		metrics.CacheHits.Inc()
		return m, nil
	}
	metrics.CacheMisses.Inc()

	_, err, _ := c.group.Do(fp, func() (interface{}, error) {
		// Another waiter may have populated the entry while we queued.
		if c.populated(fp) {
			return nil, nil
		}
		return nil, c.download(fp, candidate)
	})
	if err != nil {
		return nil, err
	}

	// Each waiter takes its own pin on the shared result.
	m := c.hit(fp)
	if m == nil {
		return nil, fmt.Errorf("%w: entry evicted before use", ErrDownloadFailed)
	}
	if ctx.Err() != nil {
		c.Release(fp)
		return nil, ctx.Err()
	}
	return m, nil
}

// populated reports whether a fresh entry exists, without touching it.
func (c *Cache) populated(fp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok || e.model.Size == 0 {
		return false
	}
	if c.config.TTL > 0 && time.Since(e.model.FetchedAt) > c.config.TTL {
		return false
	}
	return true
}

// Release drops one pin from an entry acquired earlier.
func (c *Cache) Release(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok && e.refs > 0 {
		e.refs--
	}
}

// hit returns a fresh, pinned copy of the entry, or nil on a miss.
// The Redis last-access mirror runs on its own goroutine so a slow
// Redis never stalls lookups.
func (c *Cache) hit(fp string) *models.CachedModel {
	c.mu.Lock()

	e, ok := c.entries[fp]
	if !ok || e.model.Size == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.config.TTL > 0 && time.Since(e.model.FetchedAt) > c.config.TTL {
		c.mu.Unlock()
		return nil
	}

	e.model.LastAccess = time.Now()
	c.lru.MoveToFront(e.elem)
	e.refs++

	m := e.model
	c.mu.Unlock()

	go c.mirrorLastAccess(m.Fingerprint, m.LastAccess)
	return &m
}

// download fetches the best variant, validates it and commits the entry.
// A corrupt payload gets exactly one fresh fetch before failing hard.
func (c *Cache) download(fp string, candidate *models.CandidateModel) error {
	ctx := context.Background()
	if c.config.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DownloadTimeout)
		defer cancel()
	}

	metrics.DownloadsInFlight.Inc()
	defer metrics.DownloadsInFlight.Dec()

	url, err := c.resolveVariant(ctx, candidate)
	if err != nil {
		return err
	}

	var data []byte
	for attempt := 0; attempt < 2; attempt++ {
		data, err = c.downloader.Download(ctx, url)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDownloadFailed, stderrors.NewDownloadFailedError(url, err))
		}
		if err = validatePayload(data); err == nil {
			break
		}
		c.logger.Warn("downloaded payload invalid", map[string]interface{}{
			"setNumber": candidate.SetNumber,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})
	}
	if err != nil {
		return fmt.Errorf("%w: %w", err, stderrors.NewDownloadCorruptError(fp, "failed validation after retry"))
	}

	path := filepath.Join(c.config.Dir, fp+".mpd")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write file: %v", ErrDownloadFailed, err)
	}

	now := time.Now()
	m := models.CachedModel{
		Fingerprint: fp,
		SetNumber:   candidate.SetNumber,
		Path:        path,
		Size:        int64(len(data)),
		FetchedAt:   now,
		LastAccess:  now,
	}
	c.commit(m)
	return nil
}

// resolveVariant picks the preferred downloadable file for a candidate,
// falling back to the candidate's own URL when no variant list exists.
func (c *Cache) resolveVariant(ctx context.Context, candidate *models.CandidateModel) (string, error) {
	variants, err := c.downloader.Variants(ctx, candidate.SetNumber)
	if err != nil || len(variants) == 0 {
		if candidate.URL != "" {
			return candidate.URL, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v: %w", ErrNoVariants, err, stderrors.NewNoVariantsError(candidate.SetNumber))
		}
		return "", fmt.Errorf("%w: %w", ErrNoVariants, stderrors.NewNoVariantsError(candidate.SetNumber))
	}
	return variants[0].DownloadURL, nil
}

func (c *Cache) commit(m models.CachedModel) {
	c.mu.Lock()

	if old, ok := c.entries[m.Fingerprint]; ok {
		c.totalBytes -= old.model.Size
		c.lru.Remove(old.elem)
	}

	e := &entry{model: m}
	e.elem = c.lru.PushFront(m.Fingerprint)
	c.entries[m.Fingerprint] = e
	c.totalBytes += m.Size

	c.evictLocked(m.Fingerprint)
	metrics.CacheBytes.Set(float64(c.totalBytes))
	c.mu.Unlock()

	go c.mirrorLastAccess(m.Fingerprint, m.LastAccess)
}

// evictLocked drops unpinned entries from the cold end of the LRU list
// until the byte budget holds. The just-committed entry is spared so a
// download larger than everything else cannot evict itself. Callers hold
// c.mu.
func (c *Cache) evictLocked(protect string) {
	if c.config.MaxBytes <= 0 {
		return
	}
	for c.totalBytes > c.config.MaxBytes {
		evicted := false
		for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
			fp := elem.Value.(string)
			e := c.entries[fp]
			if e.refs > 0 || fp == protect {
				continue
			}
			c.lru.Remove(elem)
			delete(c.entries, fp)
			c.totalBytes -= e.model.Size
			os.Remove(e.model.Path)
			metrics.CacheEvictions.Inc()
			c.logger.Info("evicted cache entry", map[string]interface{}{
				"setNumber": e.model.SetNumber,
				"size":      e.model.Size,
			})
			evicted = true
			break
		}
		if !evicted {
			// Everything left is pinned; the budget yields.
			return
		}
	}
}

// mirrorLastAccess best-effort publishes the access time to Redis. It
// performs network I/O, so callers run it off the lock on a goroutine.
func (c *Cache) mirrorLastAccess(fp string, at time.Time) {
	if c.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.redis.Set(ctx, lastAccessKeyPrefix+fp, at.Format(time.RFC3339Nano), 0); err != nil {
		c.logger.Debug("last-access mirror write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// validatePayload rejects empty downloads and anything that does not open
// with an LDraw meta line.
func validatePayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrDownloadCorrupt)
	}
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "0 ") || trimmed == "0" {
			return nil
		}
		return fmt.Errorf("%w: not an LDraw model file", ErrDownloadCorrupt)
	}
	return fmt.Errorf("%w: no content lines", ErrDownloadCorrupt)
}
