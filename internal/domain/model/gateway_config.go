package model

import "time"

// GatewayConfig is the stored, non-secret half of a provider configuration,
// one row per (provider, environment, tenant). Secret material never lands
// in this table; it is resolved from the environment at read time.
type GatewayConfig struct {
	ID       string
	TenantID string
	Provider Provider
	Env      Environment
	Enabled  bool
	// Priority orders fallback candidates; lower runs first.
	Priority int
	// Fields holds non-secret settings (merchant IDs, endpoint overrides,
	// feature flags). A key present both here and in the secret source is a
	// configuration conflict, not an override.
	Fields    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedConfig is the merged view handed to adapters: stored fields plus
// secrets from the environment, validated for completeness.
type ResolvedConfig struct {
	Provider Provider
	Env      Environment
	TenantID string
	Enabled  bool
	// Valid is false when required keys are missing; the resolver reports
	// the full missing set through the accompanying error.
	Valid  bool
	Fields map[string]string
}

// Field returns a merged config value; ok is false when absent.
func (c *ResolvedConfig) Field(key string) (string, bool) {
	v, ok := c.Fields[key]
	return v, ok
}
