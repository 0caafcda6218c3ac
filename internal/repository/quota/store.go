// Package quota keeps the visual search budget counters in Redis so limits survive restarts.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/lensmatch/internal/db"
)

const (
	periodDaily   = "daily"
	periodMonthly = "monthly"
)

// counterKV is the part of the KV store the counters use.
type counterKV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, onlyIfUnset bool) error
}

// Counters backs the search quota tracker.
// Each counter expires one retention window after its first increment.
type Counters struct {
	kv        counterKV
	retention map[string]time.Duration
	longest   time.Duration
}

// New creates budget counters. dayRetention applies to daily counters and
// monthRetention to monthly ones; both should outlive their period.
func New(kv counterKV, dayRetention, monthRetention time.Duration) *Counters {
	return &Counters{
		kv: kv,
		retention: map[string]time.Duration{
			periodDaily:   dayRetention,
			periodMonthly: monthRetention,
		},
		longest: max(dayRetention, monthRetention),
	}
}

// IncrBy records calls against a counter and starts its retention window on first use.
func (c *Counters) IncrBy(ctx context.Context, key string, calls int64) error {
	if err := c.kv.IncrBy(ctx, key, calls); err != nil {
		return fmt.Errorf("search budget: add %d to %s: %w", calls, key, err)
	}
	if err := c.kv.Expire(ctx, key, c.retentionFor(key), true); err != nil {
		return fmt.Errorf("search budget: retain %s: %w", key, err)
	}
	return nil
}

// Get returns the calls recorded on a counter. An absent counter reads as zero.
func (c *Counters) Get(ctx context.Context, key string) (int64, error) {
	raw, err := c.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("search budget: read %s: %w", key, err)
	}

	used, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("search budget: counter %s holds %q: %w", key, raw, err)
	}
	return used, nil
}

// retentionFor picks the window from the period segment of
// lensmatch:quota:<service>:<period>:<stamp>. Unknown periods keep the longest window.
func (c *Counters) retentionFor(key string) time.Duration {
	parts := strings.Split(key, ":")
	if len(parts) >= 2 {
		if ttl, ok := c.retention[parts[len(parts)-2]]; ok {
			return ttl
		}
	}
	return c.longest
}
