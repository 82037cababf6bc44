// Package cache stores normalized pipeline results keyed by source identity
// and raw column fingerprint, so repeated requests against an unchanged
// upload skip the classification and synthesis passes. Entries expire after a
// configurable TTL and concurrent misses for the same key are collapsed into
// a single pipeline run.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/normalize"
)

// Key format for the result cache. The version suffix guards against stale
// payloads when the entry encoding changes.
const resultKeyFormatV1 = "forecast_result_v1:%s:%s"

// Key identifies a cached pipeline result.
type Key struct {
	SourceID    string
	Fingerprint string
}

// String renders the key in its storage form.
func (k Key) String() string {
	return fmt.Sprintf(resultKeyFormatV1, k.SourceID, k.Fingerprint)
}

// Fingerprint hashes a column set into a stable hex digest. Order does not
// matter: the same columns in a different order fingerprint identically.
func Fingerprint(columns []string) string {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	h := sha256.New()
	for _, c := range sorted {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached pipeline result. Accuracy metrics are recomputed from the
// table on demand rather than cached, since deriving them is cheap relative
// to normalization.
type Entry struct {
	Table    *models.ForecastTable
	Report   *normalize.Report
	StoredAt time.Time
}

// envelope is the wire form of an Entry. The forecast table travels as
// canonical CSV text because JSON has no representation for NaN cells.
type envelope struct {
	StoredAt    time.Time         `json:"stored_at"`
	Report      *normalize.Report `json:"report"`
	ForecastCSV string            `json:"forecast_csv"`
}

// Encode serializes the entry for storage.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Table.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("encode forecast table: %w", err)
	}
	return json.Marshal(envelope{
		StoredAt:    e.StoredAt,
		Report:      e.Report,
		ForecastCSV: buf.String(),
	})
}

// DecodeEntry deserializes an entry produced by Encode.
func DecodeEntry(data []byte) (*Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	table, err := models.ReadForecastCSV(strings.NewReader(env.ForecastCSV))
	if err != nil {
		return nil, fmt.Errorf("decode forecast table: %w", err)
	}
	return &Entry{
		Table:    table,
		Report:   env.Report,
		StoredAt: env.StoredAt,
	}, nil
}

// Cache stores encoded pipeline results with a TTL.
type Cache interface {
	// Get returns the entry for key, or found=false on a miss or an
	// expired entry.
	Get(ctx context.Context, key Key) (entry *Entry, found bool, err error)

	// Set stores the entry under key for the duration of the TTL.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key Key) error

	// Close releases any resources held by the backend.
	Close() error
}

// Loader wraps a Cache and collapses concurrent misses for the same key into
// a single compute call.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader creates a cache loader. A nil cache means every call computes.
func NewLoader(cache Cache) *Loader {
	return &Loader{cache: cache}
}

// Do returns the cached entry for key, computing and storing it on a miss.
// Concurrent callers with the same key share one compute invocation. Compute
// failures are returned unwrapped so callers can inspect the pipeline error.
func (l *Loader) Do(ctx context.Context, key Key, compute func(context.Context) (*Entry, error)) (*Entry, error) {
	if l.cache == nil {
		return compute(ctx)
	}

	if entry, found, err := l.cache.Get(ctx, key); err == nil && found {
		return entry, nil
	}

	result, err, _ := l.group.Do(key.String(), func() (interface{}, error) {
		// Re-check under the flight lock in case a concurrent caller
		// already populated the entry.
		if entry, found, err := l.cache.Get(ctx, key); err == nil && found {
			return entry, nil
		}

		entry, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if entry.StoredAt.IsZero() {
			entry.StoredAt = time.Now().UTC()
		}
		if err := l.cache.Set(ctx, key, entry); err != nil {
			// A failed store is not fatal, the computed result is
			// still valid.
			return entry, nil
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, ok := result.(*Entry)
	if !ok {
		return nil, pipeerr.NewCache("unexpected flight result type", nil)
	}
	return entry, nil
}
