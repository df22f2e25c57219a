package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/identity"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// NonceBytes is the entropy of a login nonce (rendered as hex).
const NonceBytes = 16

// SignatureVerifier checks a login signature for a classified identity.
type SignatureVerifier interface {
	Verify(ctx context.Context, id identity.Identity, message, signature string) bool
}

// TokenCodec issues and verifies session tokens.
type TokenCodec interface {
	Issue(ctx context.Context, subject string) (string, time.Time, error)
	Verify(ctx context.Context, token string) (string, error)
}

// LoginRequest is a signed answer to a nonce challenge.
type LoginRequest struct {
	Address             string
	Nonce               string
	Signature           string
	EncryptionPublicKey string
	Username            string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// AuthService runs the challenge-response login and authenticates
// session tokens.
type AuthService struct {
	Deps
	verifier SignatureVerifier
	tokens   TokenCodec
	nonceTTL time.Duration
}

func NewAuthService(d Deps, verifier SignatureVerifier, tokens TokenCodec, nonceTTL time.Duration) *AuthService {
	return &AuthService{Deps: d.withModule("auth"), verifier: verifier, tokens: tokens, nonceTTL: nonceTTL}
}

// IssueNonce replaces any live nonce for address with a fresh one.
// Expired nonces of every address are swept first.
func (s *AuthService) IssueNonce(ctx context.Context, address string) (string, error) {
	id, err := identity.Parse(address)
	if err != nil {
		return "", err
	}

	value, err := common.MakeRandHexString(NonceBytes)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	err = s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Nonces(tx)
		now := s.Clock.Now()

		if _, err := repo.DeleteExpired(ctx, now); err != nil {
			return err
		}
		return repo.Upsert(ctx, &models.Nonce{
			Address:   id.Address,
			Value:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(s.nonceTTL),
		})
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Login checks the nonce, verifies the signature, then consumes the nonce
// and creates or refreshes the user in one transaction. The nonce is only
// deleted together with a successful login, or when found expired.
//
// Signature verification and token signing may call the PQC oracle, so
// they run outside any transaction and are never repeated by a
// serialization retry.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	id, err := identity.Parse(req.Address)
	if err != nil {
		return nil, err
	}

	chk, err := s.checkNonce(ctx, id.Address, req.Nonce)
	if err != nil {
		s.Log.Error(ctx, "login failed", "address", id.Address, "error", err)
		return nil, common.ErrorInternal
	}
	outcome := chk.reject
	if outcome == nil {
		if chk.kind != "" {
			id.Kind = chk.kind
		}
		if !s.verifier.Verify(ctx, id, common.LoginMessage(chk.value), req.Signature) {
			outcome = common.ErrInvalidSignature
		}
	}
	if outcome != nil {
		s.Log.Warn(ctx, "login rejected", "address", id.Address, "reason", outcome.Error())
		return nil, outcome
	}

	var user *models.User
	err = s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		nonces := s.Repos.Nonces(tx)
		users := s.Repos.Users(tx)
		now := s.Clock.Now()
		outcome = nil

		// The nonce may have been consumed or replaced since it was checked.
		n, err := nonces.GetForUpdate(ctx, id.Address)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				outcome = common.ErrNonceStale
				return nil
			}
			return err
		}
		if n.Expired(now) {
			outcome = common.ErrNonceStale
			return nonces.Delete(ctx, id.Address)
		}
		if subtle.ConstantTimeCompare([]byte(n.Value), []byte(chk.value)) != 1 {
			outcome = common.ErrNonceStale
			return nil
		}
		if err := nonces.Delete(ctx, id.Address); err != nil {
			return err
		}

		user, err = users.Get(ctx, id.Address)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			user = &models.User{
				Address:             id.Address,
				Kind:                id.Kind,
				Username:            defaultUsername(req.Username, id.Address),
				EncryptionPublicKey: req.EncryptionPublicKey,
				CreatedAt:           now,
			}
			return users.Create(ctx, user)
		case err != nil:
			return err
		}
		if req.EncryptionPublicKey != "" && req.EncryptionPublicKey != user.EncryptionPublicKey {
			if err := users.UpdateEncryptionKey(ctx, user.Address, req.EncryptionPublicKey); err != nil {
				return err
			}
			user.EncryptionPublicKey = req.EncryptionPublicKey
		}
		return nil
	})
	if err != nil {
		s.Log.Error(ctx, "login failed", "address", id.Address, "error", err)
		return nil, common.ErrorInternal
	}
	if outcome != nil {
		s.Log.Warn(ctx, "login rejected", "address", id.Address, "reason", outcome.Error())
		return nil, outcome
	}

	token, exp, err := s.tokens.Issue(ctx, user.Address)
	if err != nil {
		s.Log.Error(ctx, "issue token failed", "address", id.Address, "error", err)
		return nil, common.ErrorInternal
	}

	s.Log.Info(ctx, "user logged in", "address", id.Address, "kind", string(user.Kind))
	return &LoginResult{Token: token, ExpiresAt: exp, User: user}, nil
}

// nonceCheck is the result of matching a presented nonce. A non-nil
// reject ends the login.
type nonceCheck struct {
	value  string
	kind   identity.Kind
	reject error
}

// checkNonce matches the presented nonce against the stored one and looks
// up the kind of an already registered user. An expired nonce is deleted.
func (s *AuthService) checkNonce(ctx context.Context, address, presented string) (nonceCheck, error) {
	var chk nonceCheck
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		nonces := s.Repos.Nonces(tx)
		chk = nonceCheck{}

		n, err := nonces.GetForUpdate(ctx, address)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				chk.reject = common.ErrNonceStale
				return nil
			}
			return err
		}
		if n.Expired(s.Clock.Now()) {
			// Commit the delete, then report stale.
			chk.reject = common.ErrNonceStale
			return nonces.Delete(ctx, address)
		}
		if subtle.ConstantTimeCompare([]byte(n.Value), []byte(presented)) != 1 {
			chk.reject = common.ErrNonceMismatch
			return nil
		}
		chk.value = n.Value

		user, err := s.Repos.Users(tx).Get(ctx, address)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if user != nil {
			chk.kind = user.Kind
		}
		return nil
	})
	return chk, err
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	sub, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	var user *models.User
	err = s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.Repos.Users(tx).Get(ctx, sub)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func defaultUsername(requested, address string) string {
	if requested != "" {
		return requested
	}
	if len(address) > 7 {
		return address[:7]
	}
	return address
}
