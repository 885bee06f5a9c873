package residency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a per-region residency profile: the defaults applied when a
// tenant's residency leaves a field unset, and the buckets permitted in the
// region at all.
type Profile struct {
	Name           string   `yaml:"name" json:"name"`
	Region         string   `yaml:"region" json:"region"`
	DefaultBucket  string   `yaml:"default_bucket" json:"default_bucket"`
	DefaultKMSKey  string   `yaml:"default_kms_key" json:"default_kms_key"`
	AllowedBuckets []string `yaml:"allowed_buckets,omitempty" json:"allowed_buckets,omitempty"`
	Compliance     []string `yaml:"compliance,omitempty" json:"compliance,omitempty"`
}

// BucketAllowed reports whether a bucket may hold data for this region.
// An empty allow list permits any bucket.
func (p *Profile) BucketAllowed(bucket string) bool {
	if len(p.AllowedBuckets) == 0 {
		return true
	}
	for _, b := range p.AllowedBuckets {
		if b == bucket {
			return true
		}
	}
	return false
}

// LoadProfile loads the profile for one region from profile_<region>.yaml in
// the given directory.
func LoadProfile(profilesDir, region string) (*Profile, error) {
	region = strings.ToLower(region)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", region))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load residency profile %q: %w", region, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse residency profile %q: %w", region, err)
	}

	if profile.Region == "" {
		profile.Region = region
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the directory, keyed by
// region code.
func LoadAllProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile Profile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Region == "" {
			base := filepath.Base(path)
			profile.Region = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Region] = &profile
	}

	return profiles, nil
}
