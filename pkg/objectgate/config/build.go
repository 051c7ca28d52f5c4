package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/objectkey"
	"github.com/tendant/object-gate/pkg/objectgate/presigned"
	fsstorage "github.com/tendant/object-gate/pkg/objectgate/storage/fs"
	memorystorage "github.com/tendant/object-gate/pkg/objectgate/storage/memory"
	s3storage "github.com/tendant/object-gate/pkg/objectgate/storage/s3"
	submemory "github.com/tendant/object-gate/pkg/objectgate/subscription/memory"
	subpostgres "github.com/tendant/object-gate/pkg/objectgate/subscription/postgres"
	"github.com/tendant/object-gate/pkg/objectgate/subscription/rediscache"
)

// Runtime holds a built service together with the resources behind it
type Runtime struct {
	Service       objectgate.Service
	Store         objectgate.BlobStore
	Subscriptions objectgate.SubscriptionStore
	Metrics       *objectgate.Metrics
	// Signer is set for backends whose upload URLs are served by the
	// presigned upload handler
	Signer *presigned.Signer

	closers []func()
}

// Close releases database and cache connections
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (objectgate.Service, error) {
	rt, err := c.Build(context.Background(), nil, slog.Default())
	if err != nil {
		return nil, err
	}
	return rt.Service, nil
}

// Build assembles the storage backend, subscription store, metrics and
// service. Metrics are registered with reg when it is not nil.
func (c *ServerConfig) Build(ctx context.Context, reg prometheus.Registerer, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Metrics: objectgate.NewMetrics(reg)}

	store, signer, err := c.buildStorage(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}
	rt.Store = store
	rt.Signer = signer

	subs, err := c.buildSubscriptions(ctx, rt, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build subscription store: %w", err)
	}
	rt.Subscriptions = subs

	keys, err := objectkey.NewForLayout(c.ObjectKeyLayout)
	if err != nil {
		rt.Close()
		return nil, err
	}

	svc, err := objectgate.New(
		objectgate.WithBlobStore(store),
		objectgate.WithSubscriptionStore(subs),
		objectgate.WithPathConfig(c.PathConfig()),
		objectgate.WithKeyGenerator(keys),
		objectgate.WithAuditSink(objectgate.NewLogAuditSink(logger)),
		objectgate.WithMetrics(rt.Metrics),
		objectgate.WithLogger(logger),
		objectgate.WithUploadURLTTL(c.UploadURLTTL),
		objectgate.WithCacheTTL(c.ObjectCacheTTL),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	if len(c.PathConfig().PublicSearchRoots) == 0 || c.PathConfig().PrivateRoot == "" {
		logger.Warn("Object storage roots are incomplete; uploads and lookups will fail until configured",
			"public_roots", len(c.PathConfig().PublicSearchRoots), "private_root_set", c.PathConfig().PrivateRoot != "")
	}

	return rt, nil
}

func (c *ServerConfig) buildSigner(logger *slog.Logger) *presigned.Signer {
	key := c.PresignSecretKey
	if key == "" {
		// development only; Validate rejects this in production
		key = uuid.NewString()
		logger.Warn("PRESIGN_SECRET_KEY not set, using a random key; upload URLs will not survive a restart")
	}

	baseURL := c.PresignBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + c.Port
	}

	return presigned.New(
		presigned.WithSecretKey(key),
		presigned.WithBaseURL(baseURL),
		presigned.WithDefaultExpiration(c.UploadURLTTL),
	)
}

// buildStorage creates a BlobStore based on STORAGE_URL
func (c *ServerConfig) buildStorage(logger *slog.Logger) (objectgate.BlobStore, *presigned.Signer, error) {
	storageType, err := c.StorageType()
	if err != nil {
		return nil, nil, err
	}

	switch storageType {
	case "memory":
		signer := c.buildSigner(logger)
		return memorystorage.New(memorystorage.WithSigner(signer)), signer, nil

	case "fs":
		signer := c.buildSigner(logger)
		backend, err := fsstorage.New(fsstorage.Config{
			BaseDir: strings.TrimPrefix(c.StorageURL, "file://"),
			Signer:  signer,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, signer, nil

	case "s3":
		s3Config, err := c.s3Config()
		if err != nil {
			return nil, nil, err
		}
		backend, err := s3storage.New(s3Config)
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage backend type: %s", storageType)
	}
}

// s3Config parses s3://?region=..&endpoint=..&path_style=..&sse=..&kms_key_id=..&create_buckets=..
func (c *ServerConfig) s3Config() (s3storage.Config, error) {
	u, err := url.Parse(c.StorageURL)
	if err != nil {
		return s3storage.Config{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	q := u.Query()

	cfg := s3storage.Config{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		Endpoint:        q.Get("endpoint"),
	}
	if region := q.Get("region"); region != "" {
		cfg.Region = region
	}

	if v := q.Get("path_style"); v != "" {
		if cfg.UsePathStyle, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
	} else if cfg.Endpoint != "" {
		// S3-compatible servers such as MinIO expect path-style requests
		cfg.UsePathStyle = true
	}

	if sse := q.Get("sse"); sse != "" {
		cfg.EnableSSE = true
		cfg.SSEAlgorithm = sse
		cfg.SSEKMSKeyID = q.Get("kms_key_id")
	}

	if v := q.Get("create_buckets"); v != "" {
		create, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid create_buckets in STORAGE_URL: %w", err)
		}
		if create {
			cfg.CreateBuckets = c.rootBuckets()
		}
	}
	return cfg, nil
}

// rootBuckets lists the distinct buckets named by the configured roots
func (c *ServerConfig) rootBuckets() []string {
	paths := c.PathConfig()
	all := append(append([]string{}, paths.PublicSearchRoots...), paths.LegacySearchRoots...)
	if paths.PrivateRoot != "" {
		all = append(all, paths.PrivateRoot)
	}

	seen := make(map[string]bool)
	var buckets []string
	for _, raw := range all {
		root, err := objectgate.ParseRoot(raw)
		if err != nil || seen[root.Bucket] {
			continue
		}
		seen[root.Bucket] = true
		buckets = append(buckets, root.Bucket)
	}
	return buckets
}

// buildSubscriptions creates the subscription store and wraps it with the
// Redis cache when REDIS_URL is set
func (c *ServerConfig) buildSubscriptions(ctx context.Context, rt *Runtime, logger *slog.Logger) (objectgate.SubscriptionStore, error) {
	dbType, err := c.DatabaseType()
	if err != nil {
		return nil, err
	}

	var store objectgate.SubscriptionStore
	switch dbType {
	case "memory":
		store = submemory.New()
	case "postgres":
		if err := subpostgres.Migrate(c.DatabaseURL, logger); err != nil {
			return nil, err
		}
		pool, err := subpostgres.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		store = subpostgres.New(pool)
	}

	if c.RedisURL == "" {
		return store, nil
	}

	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	rt.closers = append(rt.closers, func() { client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		// the cache falls through to the store while Redis is away
		logger.Warn("Redis not reachable, membership cache degraded", "error", err)
	}

	return rediscache.New(client, store,
		rediscache.WithTTL(c.MembershipCacheTTL),
		rediscache.WithLogger(logger),
	), nil
}
