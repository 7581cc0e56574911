package redis

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/rowrepo/pkg/db"
)

// ResultCache stores repository query results in Redis as msgpack encoded
// row slices. Values go through the large value path so big result sets are
// compressed and chunked.
type ResultCache struct {
	manager *Manager
}

// NewResultCache creates a result cache on top of manager
func NewResultCache(manager *Manager) *ResultCache {
	return &ResultCache{manager: manager}
}

// Get returns the rows stored under key. A missing key or a disabled cache
// is reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]db.Row, bool, error) {
	data, err := c.manager.GetLarge(ctx, key)
	if IsKeyNotFound(err) || IsCacheDisabled(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := decodeRows(data)
	if err != nil {
		c.manager.metrics.RecordDecodeError()
		return nil, false, err
	}
	c.manager.metrics.RecordRows(0, len(rows))
	return rows, true, nil
}

// Set stores rows under key. A ttl of zero or less uses the manager's DefaultTTL.
func (c *ResultCache) Set(ctx context.Context, key string, rows []db.Row, ttl time.Duration) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	if err := c.manager.SetLarge(ctx, key, data, ttl); err != nil {
		if IsCacheDisabled(err) {
			return nil
		}
		return err
	}
	c.manager.metrics.RecordRows(len(rows), 0)
	return nil
}

// Delete removes key with any chunks and metadata
func (c *ResultCache) Delete(ctx context.Context, key string) error {
	if err := c.manager.DeleteLarge(ctx, key); err != nil && !IsCacheDisabled(err) {
		return err
	}
	return nil
}

// DeleteTable removes every result cached for table
func (c *ResultCache) DeleteTable(ctx context.Context, table string) error {
	err := c.manager.InvalidatePattern(ctx, Key(table, "*"))
	if err != nil && !IsCacheDisabled(err) {
		return err
	}
	return nil
}

func encodeRows(rows []db.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return buf.Bytes(), nil
}

// decodeRows decodes integers as int64 and floats as float64 regardless of
// their encoded width
func decodeRows(data []byte) ([]db.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var rows []db.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return rows, nil
}
