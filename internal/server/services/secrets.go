package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/blobstore"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
	"github.com/dmitrijs2005/safelog/internal/server/notify"
)

// SecretInput is the client-encrypted content of a new secret together
// with the data key encrypted for its owner.
type SecretInput struct {
	Name          string
	Type          models.SecretType
	EncryptedData string
	EncryptedKey  string
}

type SecretService struct {
	Deps
	engine *access.Engine
	blobs  blobstore.Store
	limits Limits
}

func NewSecretService(d Deps, engine *access.Engine, blobs blobstore.Store, limits Limits) *SecretService {
	return &SecretService{Deps: d.withModule("secrets"), engine: engine, blobs: blobs, limits: limits}
}

func (l Limits) validateSecret(in *SecretInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if in.Type == "" {
		in.Type = models.SecretTypeStandard
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown secret type %q", common.ErrValidation, in.Type)
	}
	if in.EncryptedKey == "" {
		return fmt.Errorf("%w: encrypted key is required", common.ErrValidation)
	}
	if err := l.checkPayload("encrypted_data", in.EncryptedData); err != nil {
		return err
	}
	return l.checkPayload("encrypted_key", in.EncryptedKey)
}

// createOwned inserts a secret and its owner grant using tx-bound repos.
func createOwned(ctx context.Context, r access.Repos, owner string, in SecretInput, d Deps) (*models.SecretWithKey, error) {
	now := d.Clock.Now()
	sec := &models.Secret{
		OwnerAddress:  owner,
		Name:          in.Name,
		Type:          in.Type,
		EncryptedData: in.EncryptedData,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Secrets.Create(ctx, sec); err != nil {
		return nil, err
	}
	if err := r.Grants.Create(ctx, &models.AccessGrant{
		SecretID:       sec.ID,
		GranteeAddress: owner,
		EncryptedKey:   in.EncryptedKey,
		CreatedAt:      now,
	}); err != nil {
		return nil, err
	}
	return &models.SecretWithKey{Secret: *sec, EncryptedKey: in.EncryptedKey}, nil
}

// Create stores a secret owned by caller together with caller's grant.
func (s *SecretService) Create(ctx context.Context, caller string, in SecretInput) (*models.SecretWithKey, error) {
	if err := s.limits.validateSecret(&in); err != nil {
		return nil, err
	}
	owner := identity.Normalize(caller)

	var out *models.SecretWithKey
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = createOwned(ctx, access.ReposFor(s.Repos, tx), owner, in, s.Deps)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info(ctx, "secret created", "secret_id", out.ID, "owner", owner, "type", string(out.Type))
	return out, nil
}

// ListOwned returns caller's secrets with caller's own encrypted key.
func (s *SecretService) ListOwned(ctx context.Context, caller string) ([]models.SecretWithKey, error) {
	var out []models.SecretWithKey
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.Repos.Secrets(tx).ListOwned(ctx, identity.Normalize(caller))
		return err
	})
	return out, err
}

// Get returns a secret with the caller's encrypted key. Callers without a
// live grant get common.ErrForbidden.
func (s *SecretService) Get(ctx context.Context, caller string, id int64) (*models.SecretWithKey, error) {
	var (
		out    *models.SecretWithKey
		denied bool
	)
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		r := access.ReposFor(s.Repos, tx)
		sec, err := r.Secrets.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("secret: %w", err)
		}
		g, err := s.engine.ActiveGrant(ctx, r, id, caller)
		if err != nil {
			return err
		}
		if g == nil {
			denied = true
			return nil
		}
		out = &models.SecretWithKey{Secret: *sec, EncryptedKey: g.EncryptedKey, ExpiresAt: g.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if denied {
		return nil, common.ErrForbidden
	}
	return out, nil
}

// Update replaces name and ciphertext. Owner only.
func (s *SecretService) Update(ctx context.Context, caller string, id int64, name, encryptedData string) (*models.Secret, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if err := s.limits.checkPayload("encrypted_data", encryptedData); err != nil {
		return nil, err
	}

	var out *models.Secret
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Secrets(tx)
		sec, err := repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("secret: %w", err)
		}
		if !s.engine.CanMutate(sec, caller) {
			return common.ErrForbidden
		}
		if err := repo.Update(ctx, id, name, encryptedData, s.Clock.Now()); err != nil {
			return err
		}
		out, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a secret with all its grants, chunks and workflows.
// Chunk blobs are removed after the rows are gone.
func (s *SecretService) Delete(ctx context.Context, caller string, id int64) error {
	var blobKeys []string
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		secretsRepo := s.Repos.Secrets(tx)
		chunksRepo := s.Repos.Chunks(tx)

		sec, err := secretsRepo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("secret: %w", err)
		}
		if !s.engine.CanMutate(sec, caller) {
			return common.ErrForbidden
		}

		chunks, err := chunksRepo.List(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			blobKeys = append(blobKeys, c.StorageKey)
		}

		if err := s.Repos.Grants(tx).DeleteBySecret(ctx, id); err != nil {
			return err
		}
		if err := chunksRepo.DeleteBySecret(ctx, id); err != nil {
			return err
		}
		return secretsRepo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if len(blobKeys) > 0 {
		if err := s.blobs.Delete(ctx, blobKeys...); err != nil {
			s.Log.Warn(ctx, "failed to delete chunk blobs", "secret_id", id, "error", err)
		}
	}
	s.Log.Info(ctx, "secret deleted", "secret_id", id)
	return nil
}

// Share grants another user access to caller's secret.
func (s *SecretService) Share(ctx context.Context, caller string, req access.ShareRequest) (*models.AccessGrant, error) {
	if err := s.limits.checkPayload("encrypted_key", req.EncryptedKey); err != nil {
		return nil, err
	}

	var g *models.AccessGrant
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		g, err = s.engine.Share(ctx, access.ReposFor(s.Repos, tx), caller, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, g.GranteeAddress, notify.Notification{
		Type:  notify.TypeSecretShared,
		Title: "A secret was shared with you",
		Body:  identity.Normalize(caller),
		Data:  map[string]any{"secret_id": g.SecretID, "grant_id": g.ID},
	})
	return g, nil
}

func (s *SecretService) Revoke(ctx context.Context, caller string, grantID int64) error {
	return s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.engine.Revoke(ctx, access.ReposFor(s.Repos, tx), caller, grantID)
	})
}

// ListAccess returns the live grants on caller's secret.
func (s *SecretService) ListAccess(ctx context.Context, caller string, id int64) ([]models.AccessGrant, error) {
	var out []models.AccessGrant
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.engine.ListActiveGrants(ctx, access.ReposFor(s.Repos, tx), caller, id)
		return err
	})
	return out, err
}

// SharedWithMe returns live grants caller holds on others' secrets.
func (s *SecretService) SharedWithMe(ctx context.Context, caller string) ([]models.SharedGrant, error) {
	var out []models.SharedGrant
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.engine.SharedWith(ctx, access.ReposFor(s.Repos, tx), caller)
		return err
	})
	return out, err
}
