package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	MaxUsernameLen     = 64
)

// UserService is the user directory.
type UserService struct {
	Deps
	limits Limits
}

func NewUserService(d Deps, limits Limits) *UserService {
	return &UserService{Deps: d.withModule("users"), limits: limits}
}

func (s *UserService) Get(ctx context.Context, address string) (*models.User, error) {
	var u *models.User
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		u, err = s.Repos.Users(tx).Get(ctx, identity.Normalize(address))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return u, nil
}

// Resolve looks a user up by an exact address of either kind.
func (s *UserService) Resolve(ctx context.Context, address string) (*models.User, error) {
	id, err := identity.Parse(address)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id.Address)
}

func (s *UserService) Exists(ctx context.Context, address string) (bool, error) {
	var ok bool
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		ok, err = s.Repos.Users(tx).Exists(ctx, identity.Normalize(address))
		return err
	})
	return ok, err
}

// UpdateUsername renames address. Users may only rename themselves.
func (s *UserService) UpdateUsername(ctx context.Context, caller, address, username string) (*models.User, error) {
	if identity.Normalize(caller) != identity.Normalize(address) {
		return nil, common.ErrForbidden
	}
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLen {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", common.ErrValidation, MaxUsernameLen)
	}

	var u *models.User
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Users(tx)
		addr := identity.Normalize(caller)
		if err := repo.UpdateUsername(ctx, addr, username); err != nil {
			return err
		}
		var err error
		u, err = repo.Get(ctx, addr)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return u, nil
}

// UpdatePublicKey replaces the caller's encryption public key.
func (s *UserService) UpdatePublicKey(ctx context.Context, caller, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: public key is required", common.ErrValidation)
	}
	if err := s.limits.checkPayload("public key", key); err != nil {
		return err
	}
	return s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.Repos.Users(tx).UpdateEncryptionKey(ctx, identity.Normalize(caller), key)
	})
}

// Search lists users whose address or username contains query. limit
// defaults to DefaultSearchLimit and is capped at MaxSearchLimit.
func (s *UserService) Search(ctx context.Context, query string, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	var out []models.User
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.Repos.Users(tx).Search(ctx, strings.TrimSpace(query), limit, offset)
		return err
	})
	return out, err
}
