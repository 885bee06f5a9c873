// Package residency resolves and validates the region/bucket/key triple a
// tenant-scoped bulk export must target, so exported data never lands in
// infrastructure outside the tenant's approved residency.
package residency

import (
	"log/slog"

	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// Config is the resolved residency triple, shaped the way the backend's
// export API expects it.
type Config struct {
	Region string `json:"region"`
	Bucket string `json:"bucket"`
	KMSKey string `json:"kms_key"`
}

// Resolver merges tenant residency with per-call overrides and regional
// profile defaults, and validates residency blocks echoed by the backend.
type Resolver struct {
	store    *tenancy.Store
	profiles map[string]*Profile
	logger   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProfiles supplies regional profiles used to fill missing bucket/key
// fields and to enforce per-region bucket allow lists.
func WithProfiles(profiles map[string]*Profile) ResolverOption {
	return func(r *Resolver) { r.profiles = profiles }
}

// WithResolverLogger sets the resolver's logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver bound to a tenant context store.
func NewResolver(store *tenancy.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default().With("component", "residency"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureConfig computes the residency an export must target. The tenant's
// stored residency wins for every field it carries; overrides may only fill
// fields the tenant has not configured, and a conflicting override is
// rejected. Regional profile defaults fill whatever is still missing. A
// config that still lacks a region, bucket, or KMS key after the merge is
// rejected.
func (r *Resolver) EnsureConfig(overrides *tenancy.Residency) (Config, error) {
	active, err := r.store.Require()
	if err != nil {
		return Config{}, err
	}

	merged := tenancy.Residency{}
	if active.Residency != nil {
		merged = *active.Residency
	}

	if overrides != nil {
		if err := mergeField(&merged.Region, overrides.Region, "region"); err != nil {
			return Config{}, err
		}
		if err := mergeField(&merged.StorageBucket, overrides.StorageBucket, "storage_bucket"); err != nil {
			return Config{}, err
		}
		if err := mergeField(&merged.KMSKey, overrides.KMSKey, "kms_key"); err != nil {
			return Config{}, err
		}
	}

	profile := r.profileFor(merged.Region)
	if profile != nil {
		if merged.StorageBucket == "" {
			merged.StorageBucket = profile.DefaultBucket
		}
		if merged.KMSKey == "" {
			merged.KMSKey = profile.DefaultKMSKey
		}
	}

	if merged.Region == "" {
		return Config{}, tenancy.NewAccessError("residency configuration missing region", &tenancy.AccessDetails{Field: "region"})
	}
	if merged.StorageBucket == "" {
		return Config{}, tenancy.NewAccessError("residency configuration missing storage bucket", &tenancy.AccessDetails{Field: "storage_bucket"})
	}
	if merged.KMSKey == "" {
		return Config{}, tenancy.NewAccessError("residency configuration missing KMS key", &tenancy.AccessDetails{Field: "kms_key"})
	}

	if profile != nil && !profile.BucketAllowed(merged.StorageBucket) {
		return Config{}, tenancy.NewAccessError(
			"storage bucket not permitted in region",
			&tenancy.AccessDetails{Field: "storage_bucket", Expected: profile.Region, Received: merged.StorageBucket},
		)
	}

	return Config{
		Region: merged.Region,
		Bucket: merged.StorageBucket,
		KMSKey: merged.KMSKey,
	}, nil
}

// ValidateTarget checks a residency block returned by the backend against the
// active tenant's configured residency. Fields are compared only where both
// sides are present; any mismatch is rejected naming the field and both
// values. A nil or empty echo passes.
func (r *Resolver) ValidateTarget(echo map[string]any) error {
	active, err := r.store.Require()
	if err != nil {
		return err
	}
	if active.Residency == nil {
		return nil
	}
	got := tenancy.NormalizeResidency(echo)
	return compareResidency(*active.Residency, got)
}

// ValidateTargetAgainst checks an echoed residency block against an already
// resolved config, used by the export helper to confirm the backend honored
// the exact residency it was asked for.
func (r *Resolver) ValidateTargetAgainst(echo map[string]any, cfg Config) error {
	got := tenancy.NormalizeResidency(echo)
	want := tenancy.Residency{Region: cfg.Region, StorageBucket: cfg.Bucket, KMSKey: cfg.KMSKey}
	return compareResidency(want, got)
}

func (r *Resolver) profileFor(region string) *Profile {
	if region == "" || r.profiles == nil {
		return nil
	}
	return r.profiles[region]
}

// mergeField applies first-write-wins: an override fills an absent field, but
// must match a field that is already known.
func mergeField(dst *string, override, field string) error {
	if override == "" {
		return nil
	}
	if *dst == "" {
		*dst = override
		return nil
	}
	if *dst != override {
		return tenancy.NewAccessError(
			"residency override conflicts with tenant residency",
			&tenancy.AccessDetails{Field: field, Expected: *dst, Received: override},
		)
	}
	return nil
}

func compareResidency(want, got tenancy.Residency) error {
	type pair struct{ field, want, got string }
	for _, p := range []pair{
		{"region", want.Region, got.Region},
		{"storage_bucket", want.StorageBucket, got.StorageBucket},
		{"kms_key", want.KMSKey, got.KMSKey},
	} {
		if p.want != "" && p.got != "" && p.want != p.got {
			return tenancy.NewAccessError(
				"backend residency does not match tenant residency",
				&tenancy.AccessDetails{Field: p.field, Expected: p.want, Received: p.got},
			)
		}
	}
	return nil
}
