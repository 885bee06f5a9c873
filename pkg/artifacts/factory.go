package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/elite-vending/vendhub/pkg/residency"
)

// Backend selects which archive implementation a store factory builds.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// Options configures the store factory. The bucket and region always come
// from the tenant's resolved residency, never from here.
type Options struct {
	Backend  Backend
	DataDir  string // base directory for the fs backend (default "data")
	Endpoint string // optional custom S3 endpoint (MinIO, LocalStack)
	Prefix   string // optional object key prefix
}

// NewStoreForResidency builds an archive store whose destination is pinned
// to the tenant's resolved residency. Cloud backends require the residency
// to name a bucket.
func NewStoreForResidency(ctx context.Context, cfg residency.Config, opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		dataDir := opts.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "exports"))
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, errors.New("artifacts: residency names no bucket for s3 archival")
		}
		if cfg.Region == "" {
			return nil, errors.New("artifacts: residency names no region for s3 archival")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: opts.Endpoint,
			Prefix:   opts.Prefix,
		})
	case BackendGCS:
		if cfg.Bucket == "" {
			return nil, errors.New("artifacts: residency names no bucket for gcs archival")
		}
		return newGCSStoreForResidency(ctx, cfg, opts)
	default:
		return nil, fmt.Errorf("artifacts: unsupported backend %q", backend)
	}
}
