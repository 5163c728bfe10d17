package retry

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// profileSpec is the YAML shape of a single named policy. Durations are Go
// duration strings ("500ms", "1m30s"). Omitted fields keep their
// DefaultPolicy value.
type profileSpec struct {
	MaxAttempts       *int     `yaml:"max_attempts"`
	BaseDelay         *string  `yaml:"base_delay"`
	MaxDelay          *string  `yaml:"max_delay"`
	ExponentialBase   *float64 `yaml:"exponential_base"`
	Jitter            *bool    `yaml:"jitter"`
	RespectRateLimits *bool    `yaml:"respect_rate_limits"`
	Timeout           *string  `yaml:"timeout"`
}

// LoadProfiles parses named retry policies from YAML. Each profile starts
// from DefaultPolicy, overrides the fields it names, and must validate.
// Unknown fields are rejected so typos fail loudly instead of silently
// keeping a default.
func LoadProfiles(data []byte) (map[string]Policy, error) {
	var specs map[string]profileSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&specs); err != nil {
		return nil, fmt.Errorf("retry: parsing profiles: %w", err)
	}

	profiles := make(map[string]Policy, len(specs))
	for name, spec := range specs {
		policy, err := spec.policy()
		if err != nil {
			return nil, fmt.Errorf("retry: profile %q: %w", name, err)
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("retry: profile %q: %w", name, err)
		}
		profiles[name] = policy
	}
	return profiles, nil
}

// LoadProfilesFile reads a YAML profile file and parses it with LoadProfiles
func LoadProfilesFile(path string) (map[string]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("retry: reading profiles: %w", err)
	}
	return LoadProfiles(data)
}

func (s profileSpec) policy() (Policy, error) {
	p := DefaultPolicy()
	if s.MaxAttempts != nil {
		p.MaxAttempts = *s.MaxAttempts
	}
	if err := overrideDuration(&p.BaseDelay, s.BaseDelay, "base_delay"); err != nil {
		return Policy{}, err
	}
	if err := overrideDuration(&p.MaxDelay, s.MaxDelay, "max_delay"); err != nil {
		return Policy{}, err
	}
	if s.ExponentialBase != nil {
		p.ExponentialBase = *s.ExponentialBase
	}
	if s.Jitter != nil {
		p.Jitter = *s.Jitter
	}
	if s.RespectRateLimits != nil {
		p.RespectRateLimits = *s.RespectRateLimits
	}
	if err := overrideDuration(&p.Timeout, s.Timeout, "timeout"); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func overrideDuration(dst *time.Duration, src *string, field string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
