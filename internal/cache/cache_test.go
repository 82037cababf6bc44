package cache

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/normalize"
)

func sampleEntry() *Entry {
	return &Entry{
		Table: &models.ForecastTable{Rows: []models.ForecastRow{
			{
				Date:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				PredictedMedian: 10,
				Actual:          math.NaN(),
				PI80Low:         8.5,
				PI80High:        11.5,
				PI95Low:         7,
				PI95High:        13,
			},
			{
				Date:            time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				PredictedMedian: 12,
				Actual:          11,
				PI80Low:         10.5,
				PI80High:        13.5,
				PI95Low:         9,
				PI95High:        15,
			},
		}},
		Report: &normalize.Report{
			DateColumn:  "Period",
			ValueColumn: "Forecast_Cases",
			PI80Source:  normalize.BoundSynthesized,
			PI95Source:  normalize.BoundSynthesized,
			RowsIn:      2,
			RowsOut:     2,
		},
		StoredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"date", "forecast", "actual"})
	b := Fingerprint([]string{"actual", "date", "forecast"})
	c := Fingerprint([]string{"date", "forecast"})

	assert.Equal(t, a, b, "order must not affect the fingerprint")
	assert.NotEqual(t, a, c, "column set must affect the fingerprint")
	assert.Len(t, a, 64)
}

func TestKeyString(t *testing.T) {
	key := Key{SourceID: "upload:data.csv", Fingerprint: "abc123"}
	assert.Equal(t, "forecast_result_v1:upload:data.csv:abc123", key.String())
}

func TestEntryRoundTrip(t *testing.T) {
	entry := sampleEntry()

	data, err := entry.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEntry(data)
	require.NoError(t, err)

	require.Equal(t, entry.Table.Len(), decoded.Table.Len())
	assert.True(t, math.IsNaN(decoded.Table.Rows[0].Actual))
	assert.InDelta(t, 11, decoded.Table.Rows[1].Actual, 1e-9)
	assert.Equal(t, entry.Report.DateColumn, decoded.Report.DateColumn)
	assert.Equal(t, entry.Report.RowsOut, decoded.Report.RowsOut)
	assert.True(t, entry.StoredAt.Equal(decoded.StoredAt))
}

func TestDecodeEntryRejectsGarbage(t *testing.T) {
	_, err := DecodeEntry([]byte("not json"))
	assert.Error(t, err)
}

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, key, sampleEntry()))

	entry, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, entry.Table.Len())

	require.NoError(t, c.Delete(ctx, key))
	_, found, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(5 * time.Minute)
	defer c.Close()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}
	require.NoError(t, c.Set(ctx, key, sampleEntry()))

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	current = current.Add(5*time.Minute + time.Second)
	_, found, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Len(), "expired entry should be swept on read")
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	defer c.Close()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}
	require.NoError(t, c.Set(ctx, key, sampleEntry()))

	current = current.Add(240 * time.Hour)
	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLoaderComputesOnMiss(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryCache(time.Minute))
	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}

	var computes atomic.Int32
	compute := func(context.Context) (*Entry, error) {
		computes.Add(1)
		return sampleEntry(), nil
	}

	entry, err := loader.Do(ctx, key, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Table.Len())
	assert.Equal(t, int32(1), computes.Load())

	// Second call is served from cache.
	_, err = loader.Do(ctx, key, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), computes.Load())
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryCache(time.Minute))
	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}

	var computes atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*Entry, error) {
		computes.Add(1)
		<-release
		return sampleEntry(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := loader.Do(ctx, key, compute)
			assert.NoError(t, err)
			assert.NotNil(t, entry)
		}()
	}

	// Let the goroutines pile up on the same flight before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load())
}

func TestLoaderPropagatesComputeError(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(NewMemoryCache(time.Minute))
	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}

	_, err := loader.Do(ctx, key, func(context.Context) (*Entry, error) {
		return nil, pipeerr.NewEmptyResult("no usable rows")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeerr.ErrEmptyResult)

	// Failures are not cached.
	var computes atomic.Int32
	_, err = loader.Do(ctx, key, func(context.Context) (*Entry, error) {
		computes.Add(1)
		return sampleEntry(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), computes.Load())
}

func TestLoaderNilCacheAlwaysComputes(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(nil)
	key := Key{SourceID: "file:a.csv", Fingerprint: "f1"}

	var computes atomic.Int32
	compute := func(context.Context) (*Entry, error) {
		computes.Add(1)
		return sampleEntry(), nil
	}

	for i := 0; i < 3; i++ {
		_, err := loader.Do(ctx, key, compute)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), computes.Load())
}
