package fragcache

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultStorePrefix           = "fragments"
	defaultCacheTTL              = 5 * time.Minute
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultSQLTable              = "fragment_entries"
	defaultDynamoTable           = "fragment_entries"
	defaultDynamoRegion          = "us-east-1"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "fragcache-file")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// DefaultTTL is used when a write provides ttl <= 0.
	DefaultTTL time.Duration

	// MemoryCleanupInterval controls in-process cache eviction.
	MemoryCleanupInterval time.Duration

	// Prefix scopes keys on shared backends (redis, sql, nats, dynamodb).
	Prefix string

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// FileDir controls where the file driver stores entries.
	FileDir string

	// SQLDriverName is the database/sql driver: "sqlite", "pgx" or "mysql".
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue
	// NATSBucketTTL stores raw values and relies on the bucket's MaxAge for expiry.
	NATSBucketTTL bool

	// DynamoClient overrides the client built from region and endpoint.
	DynamoClient   DynamoAPI
	DynamoRegion   string
	DynamoEndpoint string
	DynamoTable    string

	// Compression and MaxValueBytes shape values before they reach the backend.
	Compression   CompressionCodec
	MaxValueBytes int

	// EncryptionKey enables AES-GCM at rest when set (16, 24 or 32 bytes).
	EncryptionKey []byte
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultStorePrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	return c
}
