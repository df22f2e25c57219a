// Package access decides who may read or manage a secret. Reading is
// granted only through a live AccessGrant, the owner included; every
// mutation is owner-only. Expired grants are purged when a read path
// encounters them, so callers must run these methods inside a
// transaction that commits even when access is denied.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safelog/internal/clock"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/logging"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/grants"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/safelog/internal/server/repositories/users"
)

// Repos are the repositories the engine touches, bound to one transaction.
type Repos struct {
	Users   users.Repository
	Secrets secrets.Repository
	Grants  grants.Repository
}

// ReposFor binds the engine's repositories to tx.
func ReposFor(m repomanager.RepositoryManager, tx dbx.DBTX) Repos {
	return Repos{Users: m.Users(tx), Secrets: m.Secrets(tx), Grants: m.Grants(tx)}
}

type Engine struct {
	clock clock.Clock
	log   logging.Logger
}

func NewEngine(clk clock.Clock, log logging.Logger) *Engine {
	return &Engine{clock: clk, log: log}
}

// CanMutate reports whether caller owns s. Sharing never confers write
// rights.
func (e *Engine) CanMutate(s *models.Secret, caller string) bool {
	return s.OwnerAddress == identity.Normalize(caller)
}

// ActiveGrant returns caller's live grant on secretID, or nil when there is
// none. An expired grant is deleted and reported as nil.
func (e *Engine) ActiveGrant(ctx context.Context, r Repos, secretID int64, caller string) (*models.AccessGrant, error) {
	g, err := r.Grants.Find(ctx, secretID, identity.Normalize(caller))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if g.Expired(e.clock.Now()) {
		if err := r.Grants.Delete(ctx, g.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		e.log.Debug(ctx, "purged expired grant", "grant_id", g.ID, "secret_id", secretID)
		return nil, nil
	}
	return g, nil
}

// CanRead reports whether caller holds a live grant on secretID.
func (e *Engine) CanRead(ctx context.Context, r Repos, secretID int64, caller string) (bool, error) {
	g, err := e.ActiveGrant(ctx, r, secretID, caller)
	if err != nil {
		return false, err
	}
	return g != nil, nil
}

// ShareRequest describes a grant to create. A nil or zero TTL never
// expires.
type ShareRequest struct {
	SecretID     int64
	Grantee      string
	EncryptedKey string
	TTL          *time.Duration
}

// Share grants req.Grantee access to a secret owned by caller, replacing
// any earlier grant for the same grantee.
func (e *Engine) Share(ctx context.Context, r Repos, caller string, req ShareRequest) (*models.AccessGrant, error) {
	s, err := r.Secrets.Get(ctx, req.SecretID)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	if !e.CanMutate(s, caller) {
		return nil, common.ErrForbidden
	}

	grantee := identity.Normalize(req.Grantee)
	if grantee == s.OwnerAddress {
		return nil, fmt.Errorf("%w: cannot share a secret with its owner", common.ErrValidation)
	}
	if req.EncryptedKey == "" {
		return nil, fmt.Errorf("%w: encrypted key is required", common.ErrValidation)
	}
	if req.TTL != nil && *req.TTL < 0 {
		return nil, fmt.Errorf("%w: negative expiry", common.ErrValidation)
	}

	ok, err := r.Users.Exists(ctx, grantee)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("grantee: %w", common.ErrorNotFound)
	}

	// Replace rather than update so created_at restarts.
	if err := r.Grants.DeleteFor(ctx, s.ID, grantee); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	g := &models.AccessGrant{
		SecretID:       s.ID,
		GranteeAddress: grantee,
		EncryptedKey:   req.EncryptedKey,
		CreatedAt:      now,
	}
	if req.TTL != nil && *req.TTL > 0 {
		exp := now.Add(*req.TTL)
		g.ExpiresAt = &exp
	}
	if err := r.Grants.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Revoke deletes a grant. The secret owner and the grantee may revoke it;
// nobody else can. The owner's own grant cannot be revoked.
func (e *Engine) Revoke(ctx context.Context, r Repos, caller string, grantID int64) error {
	caller = identity.Normalize(caller)

	g, err := r.Grants.Get(ctx, grantID)
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	s, err := r.Secrets.Get(ctx, g.SecretID)
	if err != nil {
		return fmt.Errorf("secret: %w", err)
	}

	if !e.CanMutate(s, caller) && g.GranteeAddress != caller {
		return common.ErrForbidden
	}
	if g.GranteeAddress == s.OwnerAddress {
		return fmt.Errorf("%w: the owner grant cannot be revoked", common.ErrValidation)
	}
	return r.Grants.Delete(ctx, g.ID)
}

// ListActiveGrants returns every live grant on a secret owned by caller,
// deleting expired ones on the way.
func (e *Engine) ListActiveGrants(ctx context.Context, r Repos, caller string, secretID int64) ([]models.AccessGrant, error) {
	s, err := r.Secrets.Get(ctx, secretID)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	if !e.CanMutate(s, caller) {
		return nil, common.ErrForbidden
	}

	all, err := r.Grants.ListBySecret(ctx, secretID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	active := make([]models.AccessGrant, 0, len(all))
	for _, g := range all {
		if g.Expired(now) {
			if err := r.Grants.Delete(ctx, g.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
			continue
		}
		active = append(active, g)
	}
	return active, nil
}

// SharedWith returns live grants caller holds on other people's secrets,
// deleting expired ones on the way.
func (e *Engine) SharedWith(ctx context.Context, r Repos, caller string) ([]models.SharedGrant, error) {
	all, err := r.Grants.ListSharedWith(ctx, identity.Normalize(caller))
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	active := make([]models.SharedGrant, 0, len(all))
	for _, g := range all {
		if g.Expired(now) {
			if err := r.Grants.Delete(ctx, g.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
			continue
		}
		active = append(active, g)
	}
	return active, nil
}
