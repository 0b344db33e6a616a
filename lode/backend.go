package lode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Backend names.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config selects and configures a storage backend. It mirrors the cache
// section of the CLI configuration.
type Config struct {
	// Backend is "fs" (default), "s3" or "memory".
	Backend string
	// Path is the directory for fs, or "bucket/prefix" for s3.
	Path string

	// Region, Endpoint and PathStyle apply to s3 only. An empty region
	// falls back to the AWS default chain; Endpoint points at an
	// S3-compatible service such as MinIO.
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open opens the configured backend. An fs backend with an empty path
// returns (nil, nil): persistence is disabled.
func Open(ctx context.Context, cfg Config) (*BlobStore, error) {
	switch cfg.Backend {
	case "", BackendFS:
		if cfg.Path == "" {
			return nil, nil
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, WrapError(err, "init", cfg.Path)
		}
		return OpenBlobStore(lode.NewFSFactory(cfg.Path), BackendFS)

	case BackendS3:
		factory, err := s3Factory(ctx, cfg)
		if err != nil {
			return nil, WrapError(err, "init", cfg.Path)
		}
		return OpenBlobStore(factory, BackendS3)

	case BackendMemory:
		return OpenBlobStore(lode.NewMemoryFactory(), BackendMemory)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// splitBucketPath splits "bucket/prefix" at the first slash.
func splitBucketPath(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(path, "s3://"), "/")
	return bucket, strings.TrimSuffix(prefix, "/")
}

// s3Factory resolves credentials through the AWS default chain and
// returns a factory for stores rooted at the configured bucket and prefix.
func s3Factory(ctx context.Context, cfg Config) (lode.StoreFactory, error) {
	bucket, prefix := splitBucketPath(cfg.Path)
	if bucket == "" {
		return nil, errors.New("s3 backend requires a bucket")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: bucket, Prefix: prefix})
	}, nil
}
