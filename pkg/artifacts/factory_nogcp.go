//go:build !gcp

package artifacts

import (
	"context"
	"fmt"

	"github.com/elite-vending/vendhub/pkg/residency"
)

func newGCSStoreForResidency(ctx context.Context, cfg residency.Config, opts Options) (Store, error) {
	return nil, fmt.Errorf("GCS archival is not enabled in this build (use -tags gcp)")
}
