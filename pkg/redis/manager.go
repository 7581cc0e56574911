package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache key constants for consistent key generation across the application
const (
	cacheKeyPrefix      = "rowrepo"
	cacheKeySeparator   = ":"
	cacheMetadataSuffix = "_internal:meta"  // Internal suffix to prevent user key collisions
	cacheChunkPrefix    = "_internal:chunk" // Internal prefix for chunk keys
)

// Manager manages Redis connections and cache operations
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config, log logrus.FieldLogger) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
		log:     managerLogger(log),
	}

	// Initialize Redis client based on configuration
	if err := manager.initializeClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}

	return manager, nil
}

// NewManagerWithClient wraps an existing client. The connection settings in
// config are ignored; TTL, logging and large value settings still apply.
func NewManagerWithClient(config *Config, client redis.UniversalClient, log logrus.FieldLogger) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if client == nil {
		return nil, ErrClientNotInitialized
	}
	if config.DefaultTTL <= 0 {
		return nil, fmt.Errorf("invalid redis config: default_ttl must be positive")
	}
	return &Manager{
		config:  config,
		client:  client,
		metrics: NewMetrics(),
		log:     managerLogger(log),
	}, nil
}

func managerLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("component", "redis")
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() error {
	if !m.config.Enabled {
		return nil // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		m.log.WithField("nodes", len(m.config.Cluster.Addresses)).Info("redis cluster client configured")
		return nil
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
	m.log.WithField("addr", m.config.GetAddr()).Info("redis client configured")
	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
// Returns ErrClientNotInitialized if client is not initialized
// Returns ErrConnectionFailed if ping fails
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

func (m *Manager) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return m.config.DefaultTTL
	}
	return ttl
}

// Key joins parts under the cache key prefix
func Key(parts ...string) string {
	return cacheKeyPrefix + cacheKeySeparator + strings.Join(parts, cacheKeySeparator)
}

// Get retrieves a value from cache
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, key).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.RecordCacheMiss()
		if m.config.Logging.LogCacheMisses {
			m.log.WithField("key", key).Debug("cache miss")
		}
		return nil, ErrKeyNotFound
	}
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	m.metrics.RecordCacheHit()
	if m.config.Logging.LogCacheHits {
		m.log.WithField("key", key).Debug("cache hit")
	}
	return data, nil
}

// Set stores a value in cache with the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	start := time.Now()
	err := m.client.Set(ctx, key, value, m.ttlOrDefault(ttl)).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes a key from cache
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	start := time.Now()
	err := m.client.Del(ctx, key).Err()
	m.metrics.RecordDelete(time.Since(start))

	return err
}

// DeleteKeys removes multiple keys from cache
func (m *Manager) DeleteKeys(ctx context.Context, keys []string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return m.client.Del(ctx, keys...).Err()
}

// Exists checks if a key exists in cache
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if err := m.checkClient(); err != nil {
		return false, err
	}

	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	var cursor uint64
	const scanBatchSize = 100

	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			if err := m.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			m.metrics.RecordInvalidation()
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	m.log.WithField("pattern", pattern).Debug("cache pattern invalidated")
	return nil
}

// Flush removes every key written under the cache key prefix
func (m *Manager) Flush(ctx context.Context) error {
	return m.InvalidatePattern(ctx, cacheKeyPrefix+cacheKeySeparator+"*")
}

// getLargeValueConfig returns large value configuration with fallback to defaults
func (m *Manager) getLargeValueConfig() (maxSize, chunkSize, compressThreshold int, enableCompression, enableChunking bool) {
	config := m.config.LargeValue

	maxSize = config.MaxValueSize
	if maxSize <= 0 {
		maxSize = 1024 * 1024 * 10 // 10MB default
	}

	chunkSize = config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1024 * 1024 * 2 // 2MB default
	}

	compressThreshold = config.CompressThreshold
	if compressThreshold <= 0 {
		compressThreshold = 1024 * 100 // 100KB default
	}

	enableCompression = config.EnableCompression
	enableChunking = config.EnableChunking

	return
}

// SetLarge stores large values using compression and chunking if needed.
// A ttl of zero or less uses DefaultTTL.
func (m *Manager) SetLarge(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	maxSize, chunkSize, compressThreshold, enableCompression, enableChunking := m.getLargeValueConfig()

	if len(value) > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrValueTooLarge, len(value), maxSize)
	}

	// Drop chunks and metadata left by a previous value under the same key
	if err := m.DeleteLarge(ctx, key); err != nil {
		return err
	}

	ttl = m.ttlOrDefault(ttl)
	processedValue := value
	compressed := false

	if enableCompression && len(value) > compressThreshold {
		compressedValue, err := m.compressData(value)
		if err != nil {
			return fmt.Errorf("failed to compress large value: %w", err)
		}

		// Use compressed version if it's smaller
		if len(compressedValue) < len(value) {
			processedValue = compressedValue
			compressed = true
			m.metrics.RecordCompression(uint64(len(value) - len(compressedValue)))
		}
	}

	if enableChunking && len(processedValue) > chunkSize {
		m.metrics.RecordChunked()
		return m.setChunked(ctx, key, processedValue, compressed, chunkSize, ttl)
	}

	return m.setWithMetadata(ctx, key, processedValue, compressed, ttl)
}

// GetLarge retrieves large values, handling decompression and chunk reassembly
func (m *Manager) GetLarge(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	isChunked, err := m.isChunkedValue(ctx, key)
	if err != nil {
		return nil, err
	}

	var data []byte
	var compressed bool

	if isChunked {
		data, compressed, err = m.getChunked(ctx, key)
	} else {
		data, compressed, err = m.getWithMetadata(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	if compressed {
		return m.decompressData(data)
	}
	return data, nil
}

// compressData compresses data using gzip
func (m *Manager) compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressData decompresses gzip data
func (m *Manager) decompressData(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func chunkKey(key string, i int) string {
	return fmt.Sprintf("%s%s:%d", key, cacheChunkPrefix, i)
}

// setChunked stores large values in chunks
func (m *Manager) setChunked(ctx context.Context, key string, data []byte, compressed bool, chunkSize int, ttl time.Duration) error {
	chunkCount := (len(data) + chunkSize - 1) / chunkSize

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, key+cacheMetadataSuffix, fmt.Sprintf("chunked:%t:%d", compressed, chunkCount), ttl)

	for i := 0; i < chunkCount; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		pipe.Set(ctx, chunkKey(key, i), data[start:end], ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// parseMetadata splits "<kind>:<compressed>:<count>"
func parseMetadata(metadata string) (kind string, compressed bool, count int, err error) {
	parts := strings.Split(metadata, ":")
	if len(parts) != 3 {
		return "", false, 0, fmt.Errorf("invalid metadata: %s", metadata)
	}
	count, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", false, 0, fmt.Errorf("invalid chunk count in metadata: %s", parts[2])
	}
	return parts[0], parts[1] == "true", count, nil
}

// getChunked retrieves and reassembles chunked values
func (m *Manager) getChunked(ctx context.Context, key string) ([]byte, bool, error) {
	metadata, err := m.client.Get(ctx, key+cacheMetadataSuffix).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, ErrKeyNotFound
	}
	if err != nil {
		return nil, false, err
	}

	kind, compressed, chunkCount, err := parseMetadata(metadata)
	if err != nil {
		return nil, false, err
	}
	if kind != "chunked" {
		return nil, false, fmt.Errorf("invalid chunk metadata: %s", metadata)
	}

	var result bytes.Buffer
	for i := 0; i < chunkCount; i++ {
		chunk, err := m.client.Get(ctx, chunkKey(key, i)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A chunk expired ahead of its metadata
			m.metrics.RecordCacheMiss()
			return nil, false, ErrKeyNotFound
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to get chunk %d: %w", i, err)
		}
		result.Write(chunk)
	}

	m.metrics.RecordCacheHit()
	return result.Bytes(), compressed, nil
}

// setWithMetadata stores a single value, with metadata only when compressed
func (m *Manager) setWithMetadata(ctx context.Context, key string, data []byte, compressed bool, ttl time.Duration) error {
	if !compressed {
		return m.SetWithTTL(ctx, key, data, ttl)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, key+cacheMetadataSuffix, fmt.Sprintf("single:%t:1", compressed), ttl)
	pipe.Set(ctx, key, data, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// getWithMetadata retrieves value with compression metadata
func (m *Manager) getWithMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	metadata, err := m.client.Get(ctx, key+cacheMetadataSuffix).Result()
	if errors.Is(err, redis.Nil) {
		data, err := m.Get(ctx, key)
		return data, false, err
	}
	if err != nil {
		return nil, false, err
	}

	kind, compressed, _, err := parseMetadata(metadata)
	if err != nil {
		return nil, false, err
	}
	if kind != "single" {
		return nil, false, fmt.Errorf("invalid metadata: %s", metadata)
	}

	data, err := m.Get(ctx, key)
	return data, compressed, err
}

// isChunkedValue checks if a key represents a chunked value
func (m *Manager) isChunkedValue(ctx context.Context, key string) (bool, error) {
	metadata, err := m.client.Get(ctx, key+cacheMetadataSuffix).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(metadata, "chunked:"), nil
}

// DeleteLarge deletes large values including all chunks and metadata
func (m *Manager) DeleteLarge(ctx context.Context, key string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	metadataKey := key + cacheMetadataSuffix
	keysToDelete := []string{key, metadataKey}

	metadata, err := m.client.Get(ctx, metadataKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		if kind, _, chunkCount, perr := parseMetadata(metadata); perr == nil && kind == "chunked" {
			for i := 0; i < chunkCount; i++ {
				keysToDelete = append(keysToDelete, chunkKey(key, i))
			}
		}
	}

	return m.DeleteKeys(ctx, keysToDelete)
}

// GetMetrics returns current cache performance metrics
func (m *Manager) GetMetrics() MetricsSnapshot {
	if m.metrics == nil {
		return MetricsSnapshot{}
	}
	return m.metrics.GetSnapshot()
}

// LogMetrics writes the current metrics snapshot at info level
func (m *Manager) LogMetrics() {
	m.log.WithFields(m.GetMetrics().Fields()).Info("redis cache metrics")
}

// ResetMetrics resets all performance metrics counters
func (m *Manager) ResetMetrics() {
	if m.metrics != nil {
		m.metrics.Reset()
	}
}
