//go:build gcp

package artifacts

import (
	"context"

	"github.com/elite-vending/vendhub/pkg/residency"
)

func newGCSStoreForResidency(ctx context.Context, cfg residency.Config, opts Options) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: cfg.Bucket,
		Prefix: opts.Prefix,
	})
}
