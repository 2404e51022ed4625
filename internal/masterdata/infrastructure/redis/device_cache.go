package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	masterdata "fleet-telemetry/internal/masterdata/domain"
)

const (
	defaultKeyPrefix = "fleet:device:ext:"
	defaultTTL       = 10 * time.Minute
)

// CachedDeviceRepository caches external-id lookups in Redis in front of
// another DeviceRepository. Only hits are cached. A cached device's LastSeen
// may lag the store by up to the TTL; identity fields are immutable.
type CachedDeviceRepository struct {
	masterdata.DeviceRepository

	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// Option configures the cache.
type Option func(*CachedDeviceRepository)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedDeviceRepository) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(c *CachedDeviceRepository) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// NewCachedDeviceRepository wraps next with a Redis cache.
func NewCachedDeviceRepository(next masterdata.DeviceRepository, client *redis.Client, logger *zap.Logger, opts ...Option) (*CachedDeviceRepository, error) {
	if next == nil {
		return nil, errors.New("device cache: nil repository")
	}
	if client == nil {
		return nil, errors.New("device cache: nil redis client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CachedDeviceRepository{
		DeviceRepository: next,
		client:           client,
		ttl:              defaultTTL,
		keyPrefix:        defaultKeyPrefix,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FindByExternalID serves from Redis when possible. Cache failures fall back to the store.
func (c *CachedDeviceRepository) FindByExternalID(ctx context.Context, externalID string) (*masterdata.Device, error) {
	key := c.keyPrefix + externalID
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var device masterdata.Device
		if jsonErr := json.Unmarshal(raw, &device); jsonErr == nil {
			return &device, nil
		}
		c.logger.Warn("device cache: corrupt entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("device cache: get failed", zap.String("key", key), zap.Error(err))
	}

	device, err := c.DeviceRepository.FindByExternalID(ctx, externalID)
	if err != nil || device == nil {
		return device, err
	}
	c.store(ctx, key, device)
	return device, nil
}

// Create writes through to the store and primes the cache.
func (c *CachedDeviceRepository) Create(ctx context.Context, device *masterdata.Device) error {
	if err := c.DeviceRepository.Create(ctx, device); err != nil {
		return err
	}
	c.store(ctx, c.keyPrefix+device.ExternalID, device)
	return nil
}

func (c *CachedDeviceRepository) store(ctx context.Context, key string, device *masterdata.Device) {
	payload, err := json.Marshal(device)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("device cache: set failed", zap.String("key", key), zap.Error(err))
	}
}

// NewClient builds a Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping tests the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
