package cache

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// Config holds the in-process result cache settings.
//
// TTL is both the default and the upper bound for entry lifetimes: sturdyc
// evicts on a single client-wide TTL, shorter per-entry TTLs are enforced on
// read.
type Config struct {
	Capacity           int           `json:"capacity" yaml:"capacity" env:"CAPACITY"`
	NumShards          int           `json:"num_shards" yaml:"num_shards" env:"NUM_SHARDS"`
	TTL                time.Duration `json:"ttl" yaml:"ttl" env:"TTL"`
	EvictionPercentage int           `json:"eviction_percentage" yaml:"eviction_percentage" env:"EVICTION_PERCENTAGE"`
	EvictionInterval   time.Duration `json:"eviction_interval" yaml:"eviction_interval" env:"EVICTION_INTERVAL"`
}

// DefaultConfig returns a Config with defaults suitable for a single service
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                10 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be greater than 0")
	}
	if c.NumShards <= 0 {
		return fmt.Errorf("cache num_shards must be greater than 0")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache ttl must be greater than 0")
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return fmt.Errorf("cache eviction_percentage must be between 1 and 100")
	}
	return nil
}

type entry struct {
	rows      []db.Row
	expiresAt time.Time
}

// Local is an in-process result cache on top of sturdyc. Rows are copied on
// the way in and out so callers cannot mutate cached state.
type Local struct {
	client *sturdyc.Client[entry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewLocal creates an in-process result cache
func NewLocal(cfg Config) (*Local, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	return &Local{
		client: sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, opts...),
		maxTTL: cfg.TTL,
		now:    time.Now,
	}, nil
}

// Get returns the rows stored under key
func (l *Local) Get(_ context.Context, key string) ([]db.Row, bool, error) {
	e, ok := l.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if l.now().After(e.expiresAt) {
		l.client.Delete(key)
		return nil, false, nil
	}
	return cloneRows(e.rows), true, nil
}

// Set stores rows under key for ttl. A non-positive or oversized ttl uses the
// configured maximum.
func (l *Local) Set(_ context.Context, key string, rows []db.Row, ttl time.Duration) error {
	if ttl <= 0 || ttl > l.maxTTL {
		ttl = l.maxTTL
	}
	l.client.Set(key, entry{rows: cloneRows(rows), expiresAt: l.now().Add(ttl)})
	return nil
}

// Delete removes key
func (l *Local) Delete(_ context.Context, key string) error {
	l.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every key starting with prefix
func (l *Local) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range l.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			l.client.Delete(key)
		}
	}
	return nil
}

// Size returns the number of stored entries, expired ones included
func (l *Local) Size() int {
	return l.client.Size()
}

func cloneRows(rows []db.Row) []db.Row {
	if rows == nil {
		return nil
	}
	out := make([]db.Row, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	return out
}
