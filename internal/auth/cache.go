package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/dangthobach/data-extraction/internal/caller"
	"github.com/dangthobach/data-extraction/internal/common"
	"github.com/dangthobach/data-extraction/internal/entity"
)

// SharedCache is the distributed credential tier shared across instances.
// Errors from the shared tier are treated as misses; the source of truth is
// always reachable through the identity client.
type SharedCache interface {
	Get(ctx context.Context, key string) (*entity.Credential, error)
	Set(ctx context.Context, key string, cred *entity.Credential, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache is the tiered credential lookup: bounded in-process tier, shared
// distributed tier, then the identity authority. A revoked credential may be
// served for up to max(local TTL, shared TTL); Invalidate purges all tiers.
type Cache struct {
	local    *localCache
	shared   SharedCache
	identity IdentityClient
	call     *caller.Caller

	sharedTTL time.Duration
	log       *slog.Logger
}

// CacheOptions tunes the tiers.
type CacheOptions struct {
	LocalMaxSize int
	LocalTTL     time.Duration
	SharedTTL    time.Duration
	Clock        func() time.Time
}

func NewCache(shared SharedCache, identity IdentityClient, call *caller.Caller, opts CacheOptions, log *slog.Logger) *Cache {
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = 10 * time.Minute
	}
	if opts.SharedTTL <= 0 {
		opts.SharedTTL = time.Hour
	}
	return &Cache{
		local:     newLocalCache(opts.LocalMaxSize, opts.LocalTTL, opts.Clock),
		shared:    shared,
		identity:  identity,
		call:      call,
		sharedTTL: opts.SharedTTL,
		log:       log,
	}
}

// Lookup resolves a credential pair, consulting the tiers in order and
// repopulating outer tiers on inner hits. Fails with common.ErrUnauthorized
// when the credential is absent, expired or revoked.
func (c *Cache) Lookup(ctx context.Context, clientID, clientSecret string) (*entity.Credential, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, common.NewAppError("AUTH_MISSING", "client credentials are required", common.ErrUnauthorized)
	}

	key := hashToken(clientID + ":" + clientSecret)

	if cred, ok := c.local.Get(key); ok {
		c.log.Debug("credential found in local cache", "tenant_id", cred.TenantID)
		cred.CachedLocal = true
		return &cred, nil
	}

	if cred := c.sharedGet(ctx, key); cred != nil {
		c.log.Debug("credential found in shared cache", "tenant_id", cred.TenantID)
		c.local.Put(key, *cred)
		cred.CachedShared = true
		return cred, nil
	}

	var result *ValidateResult
	err := c.call.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.identity.Validate(ctx, clientID, clientSecret)
		return err
	})
	if err != nil {
		c.log.Error("identity validation failed", "error", err)
		return nil, common.NewAppError("AUTH_FAILED", "authentication failed", common.ErrUnauthorized)
	}
	if !result.Valid {
		return nil, common.NewAppError("AUTH_INVALID", "invalid credentials: "+result.Message, common.ErrUnauthorized)
	}

	cred := &entity.Credential{
		TenantID:   result.TenantID,
		TenantName: result.TenantName,
		DailyLimit: result.DailyLimit,
	}

	c.local.Put(key, *cred)
	c.sharedSet(ctx, key, cred)
	return cred, nil
}

// Invalidate purges a credential pair from every tier.
func (c *Cache) Invalidate(ctx context.Context, clientID, clientSecret string) {
	key := hashToken(clientID + ":" + clientSecret)
	c.local.Delete(key)
	if err := c.shared.Delete(ctx, key); err != nil {
		c.log.Warn("shared cache delete failed", "error", err)
	}
}

func (c *Cache) sharedGet(ctx context.Context, key string) *entity.Credential {
	cred, err := c.shared.Get(ctx, key)
	if err != nil {
		c.log.Warn("shared cache read failed", "error", err)
		return nil
	}
	return cred
}

func (c *Cache) sharedSet(ctx context.Context, key string, cred *entity.Credential) {
	if err := c.shared.Set(ctx, key, cred, c.sharedTTL); err != nil {
		c.log.Warn("shared cache write failed", "error", err)
	}
}

// hashToken shortens the raw token into a stable cache key.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
