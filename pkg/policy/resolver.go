package policy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/logging"
	"github.com/identra/identra/pkg/query"
)

// BuiltInDefaultID marks a policy that came from the compiled-in defaults
// rather than a projection row.
const BuiltInDefaultID = "built-in-default"

const defaultCacheTTL = 5 * time.Second

// Resolver answers "which policy applies here": the org override wins,
// then the instance default, then the compiled-in default. It never
// returns NotFound; some policy always applies.
type Resolver struct {
	queries *query.Queries
	cache   cache.Cache
	ttl     time.Duration
	logger  logging.Logger
}

type Option func(*Resolver)

// WithCache caches resolved policies. Entries expire after the TTL; there
// is no event-driven invalidation, so staleness is bounded by it.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(queries *query.Queries, opts ...Option) *Resolver {
	r := &Resolver{
		queries: queries,
		cache:   cache.Noop{},
		ttl:     defaultCacheTTL,
		logger:  logging.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoginPolicy resolves the login policy applying to an org.
func (r *Resolver) LoginPolicy(ctx context.Context, instanceID, orgID string) (*query.LoginPolicy, error) {
	key := "policy:login:" + instanceID + ":" + orgID
	if p := cached[query.LoginPolicy](ctx, r, key); p != nil {
		return p, nil
	}

	p, err := r.queries.LoginPolicyByOrg(ctx, instanceID, orgID)
	if errs.IsNotFound(err) {
		p, err = r.queries.DefaultLoginPolicy(ctx, instanceID)
	}
	if errs.IsNotFound(err) {
		p, err = defaultLoginPolicy(instanceID), nil
	}
	if err != nil {
		return nil, err
	}

	r.store(ctx, key, p)
	return p, nil
}

// LockoutPolicy resolves the lockout policy applying to an org.
func (r *Resolver) LockoutPolicy(ctx context.Context, instanceID, orgID string) (*query.LockoutPolicy, error) {
	key := "policy:lockout:" + instanceID + ":" + orgID
	if p := cached[query.LockoutPolicy](ctx, r, key); p != nil {
		return p, nil
	}

	p, err := r.queries.LockoutPolicyByOrg(ctx, instanceID, orgID)
	if errs.IsNotFound(err) {
		p, err = r.queries.DefaultLockoutPolicy(ctx, instanceID)
	}
	if errs.IsNotFound(err) {
		p, err = defaultLockoutPolicy(instanceID), nil
	}
	if err != nil {
		return nil, err
	}

	r.store(ctx, key, p)
	return p, nil
}

// PasswordComplexityPolicy resolves the password complexity policy
// applying to an org.
func (r *Resolver) PasswordComplexityPolicy(ctx context.Context, instanceID, orgID string) (*query.PasswordComplexityPolicy, error) {
	key := "policy:complexity:" + instanceID + ":" + orgID
	if p := cached[query.PasswordComplexityPolicy](ctx, r, key); p != nil {
		return p, nil
	}

	p, err := r.queries.PasswordComplexityPolicyByOrg(ctx, instanceID, orgID)
	if errs.IsNotFound(err) {
		p, err = r.queries.DefaultPasswordComplexityPolicy(ctx, instanceID)
	}
	if errs.IsNotFound(err) {
		p, err = defaultPasswordComplexityPolicy(instanceID), nil
	}
	if err != nil {
		return nil, err
	}

	r.store(ctx, key, p)
	return p, nil
}

func cached[T any](ctx context.Context, r *Resolver, key string) *T {
	raw, ok := r.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	p := new(T)
	if err := json.Unmarshal(raw, p); err != nil {
		r.logger.Warn("dropping undecodable policy cache entry", "key", key, "error", err)
		r.cache.Delete(ctx, key)
		return nil
	}
	return p
}

func (r *Resolver) store(ctx context.Context, key string, policy any) {
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	r.cache.Set(ctx, key, raw, r.ttl)
}

// defaultLoginPolicy is the compiled-in fallback: username/password login
// with registration, no forced MFA.
func defaultLoginPolicy(instanceID string) *query.LoginPolicy {
	return &query.LoginPolicy{
		AggregateID:           BuiltInDefaultID,
		InstanceID:            instanceID,
		IsDefault:             true,
		AllowUsernamePassword: true,
		AllowRegister:         true,
	}
}

// defaultLockoutPolicy is the compiled-in fallback: 10 password attempts,
// 5 OTP attempts, failures shown.
func defaultLockoutPolicy(instanceID string) *query.LockoutPolicy {
	return &query.LockoutPolicy{
		AggregateID:         BuiltInDefaultID,
		InstanceID:          instanceID,
		IsDefault:           true,
		MaxPasswordAttempts: 10,
		MaxOTPAttempts:      5,
		ShowLockoutFailures: true,
	}
}

// defaultPasswordComplexityPolicy is the compiled-in fallback: 8
// characters with lower, upper and number classes.
func defaultPasswordComplexityPolicy(instanceID string) *query.PasswordComplexityPolicy {
	return &query.PasswordComplexityPolicy{
		AggregateID:  BuiltInDefaultID,
		InstanceID:   instanceID,
		IsDefault:    true,
		MinLength:    8,
		HasLowercase: true,
		HasUppercase: true,
		HasNumber:    true,
	}
}
