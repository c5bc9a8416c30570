package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dandi/dandi/internal/keygen"
	"github.com/dandi/dandi/internal/metrics"
	"github.com/dandi/dandi/internal/model"
	"github.com/dandi/dandi/internal/store"
)

// Identity is a resolved requester, used for ownership checks.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Cache stores resolved identities keyed by a hash of the session
// credential. A nil Cache disables caching.
type Cache interface {
	GetIdentity(ctx context.Context, tokenHash string) (*Identity, error)
	SetIdentity(ctx context.Context, tokenHash string, ident *Identity) error
}

// Resolver maps session credentials to users. Resolution is also the
// user-tracking trigger: each uncached resolution upserts the user's
// profile and last_login. A cache hit skips that upsert, so with a
// cache configured last_login can lag behind real activity by up to the
// cache TTL.
type Resolver struct {
	store    store.Store
	cache    Cache
	verifier SessionVerifier
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(st store.Store, cache Cache, verifier SessionVerifier, logger *slog.Logger, recorder metrics.Recorder) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		store:    st,
		cache:    cache,
		verifier: verifier,
		logger:   logger,
		metrics:  recorder,
	}
}

// Resolve returns the identity for a session credential, or nil when the
// request carries no usable session. It never returns an error: failures
// below the session check are logged and collapse to "no identity",
// except the profile upsert, which is best-effort and never blocks a
// request that already has a valid user.
func (r *Resolver) Resolve(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}

	claims, err := r.verifier.Verify(token)
	if err != nil {
		return nil
	}
	if claims.Email == "" {
		return nil
	}

	tokenHash := keygen.QuickHash(token)
	if r.cache != nil {
		if cached, err := r.cache.GetIdentity(ctx, tokenHash); err == nil && cached != nil {
			r.metrics.IncIdentityCacheHit()
			return cached
		}
		// Hit/miss counters only move when a cache is configured.
		r.metrics.IncIdentityCacheMiss()
	}

	user := r.upsertUser(ctx, claims)
	if user == nil {
		return nil
	}

	ident := &Identity{UserID: user.ID, Email: user.Email}
	if r.cache != nil {
		if err := r.cache.SetIdentity(ctx, tokenHash, ident); err != nil {
			r.logger.Warn("failed to cache identity", slog.String("error", err.Error()))
		}
	}
	return ident
}

// upsertUser creates the user on first sight of an email, or refreshes
// name, image, and last_login on later logins. The refresh is swallowed
// with a warning: a failed profile write must not block the request.
func (r *Resolver) upsertUser(ctx context.Context, claims *SessionClaims) *model.User {
	profile := model.UserProfile{
		Email: claims.Email,
		Name:  optional(claims.Name),
		Image: optional(claims.Image),
	}
	now := time.Now().UTC()

	user, err := r.store.GetUserByEmail(ctx, claims.Email)
	if err == nil {
		if err := r.store.UpdateUserProfile(ctx, profile, now); err != nil {
			r.logger.Warn("failed to update user profile",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		r.metrics.IncUserUpserted()
		return user
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		r.logger.Error("failed to look up user", slog.String("error", err.Error()))
		return nil
	}

	user = &model.User{
		ID:        ulid.Make().String(),
		Email:     claims.Email,
		Name:      profile.Name,
		Image:     profile.Image,
		CreatedAt: now,
		LastLogin: now,
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		// Another request may have created the user concurrently.
		if errors.Is(err, store.ErrEmailExists) {
			existing, err := r.store.GetUserByEmail(ctx, claims.Email)
			if err != nil {
				r.logger.Error("failed to re-fetch user after create race", slog.String("error", err.Error()))
				return nil
			}
			return existing
		}
		r.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil
	}

	r.metrics.IncUserUpserted()
	return user
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
