package entity

// Credential is the cached result of a successful identity validation.
// It is a cached value only; the identity authority is the source of truth.
type Credential struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	DailyLimit int    `json:"daily_limit"`

	// Cache provenance, useful for diagnostics; never persisted.
	CachedLocal  bool `json:"-"`
	CachedShared bool `json:"-"`
}
