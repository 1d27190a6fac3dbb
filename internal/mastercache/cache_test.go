package mastercache

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildcall/callmatch-go/internal/dsp"
	"github.com/wildcall/callmatch-go/internal/errors"
)

func sessionConfig() (dsp.MFCCConfig, int) {
	return dsp.MFCCConfig{
		SampleRate: 44100,
		FrameSize:  512,
		NumCoeffs:  13,
		NumFilters: 26,
	}, 256
}

func newTestCache(t *testing.T, maxRecords int) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(Config{
		Dir:         dir,
		MaxRecords:  maxRecords,
		NegativeTTL: time.Minute,
	})
	require.NoError(t, err)
	return c, dir
}

func writeRecord(t *testing.T, dir, callID string) *Record {
	t.Helper()
	rec := testRecord(t, 20, true)
	rec.CallID = callID
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, callID+".mfc"), Encode(rec), 0o644))
	return rec
}

func TestCacheAcquireFromDisk(t *testing.T) {
	c, dir := newTestCache(t, 4)
	writeRecord(t, dir, "elk-bugle")

	cfg, hop := sessionConfig()
	rec, err := c.Acquire("elk-bugle", cfg, hop)
	require.NoError(t, err)
	assert.Equal(t, "elk-bugle", rec.CallID)
	assert.Equal(t, 1, c.Refs("elk-bugle"))

	// Second acquire hits memory and shares the record.
	rec2, err := c.Acquire("elk-bugle", cfg, hop)
	require.NoError(t, err)
	assert.Same(t, rec, rec2)
	assert.Equal(t, 2, c.Refs("elk-bugle"))

	c.Release("elk-bugle")
	c.Release("elk-bugle")
	assert.Equal(t, 0, c.Refs("elk-bugle"))
}

func TestCacheNotFound(t *testing.T) {
	c, _ := newTestCache(t, 4)
	cfg, hop := sessionConfig()

	_, err := c.Acquire("absent", cfg, hop)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	// Second lookup is answered by the negative cache with the same kind.
	_, err = c.Acquire("absent", cfg, hop)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCacheVersionMismatchOnParams(t *testing.T) {
	c, dir := newTestCache(t, 4)
	writeRecord(t, dir, "elk-bugle")

	cfg, hop := sessionConfig()
	cfg.NumCoeffs = 20
	cfg.NumFilters = 26

	_, err := c.Acquire("elk-bugle", cfg, hop)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryVersionMismatch))
}

func TestCacheEvictionDeferredWhilePinned(t *testing.T) {
	c, dir := newTestCache(t, 2)
	cfg, hop := sessionConfig()

	writeRecord(t, dir, "a")
	writeRecord(t, dir, "b")
	writeRecord(t, dir, "c")

	recA, err := c.Acquire("a", cfg, hop)
	require.NoError(t, err)

	// Fill the LRU past capacity; "a" is evicted but pinned.
	_, err = c.Acquire("b", cfg, hop)
	require.NoError(t, err)
	_, err = c.Acquire("c", cfg, hop)
	require.NoError(t, err)

	// The pinned record is still served, identical pointer.
	recA2, err := c.Acquire("a", cfg, hop)
	require.NoError(t, err)
	assert.Same(t, recA, recA2)

	c.Release("a")
	c.Release("a")
	c.Release("b")
	c.Release("c")
}

func TestCacheStoreThenAcquire(t *testing.T) {
	c, dir := newTestCache(t, 4)
	rec := testRecord(t, 12, false)
	rec.CallID = "loon-wail"
	require.NoError(t, c.Store(rec))

	// The file exists on disk.
	_, err := os.Stat(filepath.Join(dir, "loon-wail.mfc"))
	require.NoError(t, err)

	cfg, hop := sessionConfig()
	got, err := c.Acquire("loon-wail", cfg, hop)
	require.NoError(t, err)
	assert.Same(t, rec, got)
}

func TestCacheBakerRunsOnDiskMiss(t *testing.T) {
	dir := t.TempDir()
	baked := testRecord(t, 15, false)
	baked.CallID = "raven-croak"

	bakerCalls := 0
	c, err := New(Config{
		Dir:         dir,
		MaxRecords:  4,
		NegativeTTL: time.Minute,
		Baker: func(callID, wavPath string) (*Record, error) {
			bakerCalls++
			return baked, nil
		},
	})
	require.NoError(t, err)

	// Sibling WAV present triggers the baker.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raven-croak.wav"), []byte("stub"), 0o644))

	cfg, hop := sessionConfig()
	rec, err := c.Acquire("raven-croak", cfg, hop)
	require.NoError(t, err)
	assert.Same(t, baked, rec)
	assert.Equal(t, 1, bakerCalls)

	// Baked record was persisted; a fresh cache loads it without the baker.
	c2, err := New(Config{Dir: dir, MaxRecords: 4, NegativeTTL: time.Minute})
	require.NoError(t, err)
	rec2, err := c2.Acquire("raven-croak", cfg, hop)
	require.NoError(t, err)
	assert.True(t, rec.Features.Equal(rec2.Features))
}

func TestCacheConcurrentAcquireBakesOnce(t *testing.T) {
	dir := t.TempDir()
	baked := testRecord(t, 15, false)
	baked.CallID = "wood-duck"

	var bakerCalls atomic.Int32
	c, err := New(Config{
		Dir:         dir,
		MaxRecords:  4,
		NegativeTTL: time.Minute,
		Baker: func(callID, wavPath string) (*Record, error) {
			bakerCalls.Add(1)
			time.Sleep(10 * time.Millisecond) // widen the race window
			return baked, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wood-duck.wav"), []byte("stub"), 0o644))

	cfg, hop := sessionConfig()
	var wg sync.WaitGroup
	results := make([]*Record, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := c.Acquire("wood-duck", cfg, hop)
			if err == nil {
				results[i] = rec
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), bakerCalls.Load(), "concurrent misses share one load flight")
	for i, rec := range results {
		require.NotNil(t, rec, "goroutine %d failed to acquire", i)
		assert.Same(t, baked, rec)
	}
	assert.Equal(t, 8, c.Refs("wood-duck"))
}

func TestCacheCorruptFile(t *testing.T) {
	c, dir := newTestCache(t, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.mfc"), []byte("garbage"), 0o644))

	cfg, hop := sessionConfig()
	_, err := c.Acquire("bad", cfg, hop)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCorruptData))
}
