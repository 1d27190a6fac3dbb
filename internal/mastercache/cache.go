package mastercache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/errors"
	"github.com/wildcall/callmatch-go/internal/logging"
	"github.com/wildcall/callmatch-go/internal/observability/metrics"
)

// Baker extracts a feature record from a raw audio file. The cache calls it
// on a disk miss when a sibling WAV exists and a Baker is configured; the
// engine does not configure one, so its caches load .mfc files only.
type Baker func(callID, wavPath string) (*Record, error)

// Config parameterizes the cache.
type Config struct {
	Dir         string // directory holding <call_id>.mfc files
	MaxRecords  int
	NegativeTTL time.Duration
	Baker       Baker
	Metrics     *metrics.AnalysisMetrics // optional
}

// Cache maps call ids to immutable feature records. Lookups are served from
// an LRU; records evicted while sessions still reference them are parked in
// a pin table until the last reference is released.
type Cache struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	lru    *lru.Cache[string, *Record]
	pins   map[string]int     // call id -> live references
	parked map[string]*Record // evicted but still referenced

	negative *gocache.Cache // call id -> error kind for recent failed loads

	// loads collapses concurrent disk reads (and bakes) of the same call id
	// into one flight.
	loads singleflight.Group
}

// New creates the cache.
func New(cfg Config) (*Cache, error) {
	logger := logging.ForService("mastercache")
	if logger == nil {
		logger = slog.Default().With("service", "mastercache")
	}

	c := &Cache{
		cfg:      cfg,
		logger:   logger,
		pins:     make(map[string]int),
		parked:   make(map[string]*Record),
		// No janitor goroutine; expired entries are dropped lazily on Get.
		negative: gocache.New(cfg.NegativeTTL, 0),
	}

	l, err := lru.NewWithEvict(cfg.MaxRecords, c.onEvict)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMasterCache).
			Category(errors.CategoryValidation).
			Context("max_records", cfg.MaxRecords).
			Build()
	}
	c.lru = l
	return c, nil
}

// onEvict runs inside lru operations, which the cache always performs under
// c.mu; a still-referenced record moves to the pin table instead of dying.
func (c *Cache) onEvict(callID string, rec *Record) {
	if c.pins[callID] > 0 {
		c.parked[callID] = rec
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CacheEvictions.Inc()
	}
}

// Acquire returns the record for callID, loading it from disk on a miss, and
// takes a reference the caller must release. The record must be compatible
// with the given extraction parameters.
func (c *Cache) Acquire(callID string, cfg dsp.MFCCConfig, hopSize int) (*Record, error) {
	c.mu.Lock()
	if rec, ok := c.lookupLocked(callID); ok {
		if !rec.CompatibleWith(cfg, hopSize) {
			c.mu.Unlock()
			return nil, versionMismatch(callID, "cached record parameters do not match session", FormatVersion)
		}
		c.pins[callID]++
		c.mu.Unlock()
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.CacheHits.Inc()
		}
		return rec, nil
	}
	c.mu.Unlock()

	if kind, found := c.negative.Get(callID); found {
		return nil, errors.Newf("master call %q unavailable (recent failure)", callID).
			Component(componentMasterCache).
			Category(kind.(errors.ErrorCategory)).
			Context("call_id", callID).
			Build()
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CacheMisses.Inc()
	}

	v, err, _ := c.loads.Do(callID, func() (any, error) {
		return c.loadFromDisk(callID)
	})
	if err != nil {
		if cat := errors.CategoryOf(err); cat == errors.CategoryNotFound {
			c.negative.SetDefault(callID, cat)
		}
		return nil, err
	}
	rec := v.(*Record)
	if !rec.CompatibleWith(cfg, hopSize) {
		return nil, versionMismatch(callID, "record parameters do not match session", FormatVersion)
	}

	c.mu.Lock()
	// Another loader may have raced us; prefer the resident record.
	if existing, ok := c.lookupLocked(callID); ok {
		rec = existing
	} else {
		c.lru.Add(callID, rec)
	}
	c.pins[callID]++
	c.mu.Unlock()
	return rec, nil
}

// Release drops one reference to callID.
func (c *Cache) Release(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[callID] == 0 {
		return
	}
	c.pins[callID]--
	if c.pins[callID] == 0 {
		delete(c.pins, callID)
		delete(c.parked, callID)
	}
}

// Store encodes a record and writes it to the cache directory, making it
// resident in memory as well.
func (c *Cache) Store(rec *Record) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return errors.New(err).
			Component(componentMasterCache).
			Category(errors.CategoryFileIO).
			Context("operation", "create_cache_dir").
			Build()
	}
	path := c.mfcPath(rec.CallID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Encode(rec), 0o644); err != nil {
		return errors.New(err).
			Component(componentMasterCache).
			Category(errors.CategoryFileIO).
			Context("operation", "write_mfc").
			Context("path", path).
			Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.New(err).
			Component(componentMasterCache).
			Category(errors.CategoryFileIO).
			Context("operation", "rename_mfc").
			Build()
	}

	c.mu.Lock()
	c.lru.Add(rec.CallID, rec)
	c.mu.Unlock()
	c.negative.Delete(rec.CallID)
	return nil
}

// Len returns the resident record count, pinned parked records included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len() + len(c.parked)
}

// Refs returns the live reference count for a call id.
func (c *Cache) Refs(callID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pins[callID]
}

func (c *Cache) lookupLocked(callID string) (*Record, bool) {
	if rec, ok := c.lru.Get(callID); ok {
		return rec, true
	}
	if rec, ok := c.parked[callID]; ok {
		return rec, true
	}
	return nil, false
}

func (c *Cache) loadFromDisk(callID string) (*Record, error) {
	path := c.mfcPath(callID)
	data, err := os.ReadFile(path)
	if err == nil {
		return Decode(callID, data)
	}
	if !os.IsNotExist(err) {
		return nil, errors.New(err).
			Component(componentMasterCache).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	// Disk miss: bake from a sibling WAV when a baker is wired.
	if c.cfg.Baker != nil {
		wavPath := filepath.Join(c.cfg.Dir, callID+".wav")
		if _, statErr := os.Stat(wavPath); statErr == nil {
			c.logger.Info("baking master call features", "call_id", callID, "source", wavPath)
			rec, bakeErr := c.cfg.Baker(callID, wavPath)
			if bakeErr != nil {
				return nil, bakeErr
			}
			if storeErr := c.Store(rec); storeErr != nil {
				c.logger.Warn("failed to persist baked features", "call_id", callID, "error", storeErr)
			}
			return rec, nil
		}
	}

	return nil, errors.Newf("master call %q not found", callID).
		Component(componentMasterCache).
		Category(errors.CategoryNotFound).
		Context("call_id", callID).
		Context("path", path).
		Build()
}

func (c *Cache) mfcPath(callID string) string {
	return filepath.Join(c.cfg.Dir, fmt.Sprintf("%s.mfc", callID))
}
