// Package vault owns CRUD over per-user provider credentials. Secrets are
// encrypted before they reach storage and decrypted only on the single path
// that feeds a provider call.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/models"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/repositories/credentials"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

// ActiveKey is the result of resolving a user's active credential for a
// provider. Secret is plaintext: the caller must use it for exactly one
// provider call, wipe it with common.WipeByteArray afterwards, and must never
// retain or log it.
type ActiveKey struct {
	CredentialID string
	Secret       []byte
}

// Service implements the credential vault on top of a repository and a cipher.
type Service struct {
	repo         credentials.Repository
	cipher       *cryptox.Cipher
	defaultQuota int
	minSecretLen int
	logger       logging.Logger
}

func NewService(repo credentials.Repository, cipher *cryptox.Cipher, defaultQuota, minSecretLen int, logger logging.Logger) *Service {
	return &Service{
		repo:         repo,
		cipher:       cipher,
		defaultQuota: defaultQuota,
		minSecretLen: minSecretLen,
		logger:       logger,
	}
}

// AddCredential validates, encrypts and stores a new credential. The remaining
// counter starts at the configured default quota. The owner's first credential
// for a provider becomes active automatically.
func (s *Service) AddCredential(ctx context.Context, userID int64, provider, secret, alias string) (models.CredentialInfo, error) {
	alias = strings.TrimSpace(alias)

	if len(secret) < s.minSecretLen {
		return models.CredentialInfo{}, fmt.Errorf("%w: secret shorter than %d characters", common.ErrValidation, s.minSecretLen)
	}
	if alias == "" {
		return models.CredentialInfo{}, fmt.Errorf("%w: empty alias", common.ErrValidation)
	}

	token, err := s.cipher.Encrypt(secret)
	if err != nil {
		return models.CredentialInfo{}, fmt.Errorf("encrypt error: %w", err)
	}

	cred := &models.Credential{
		ID:             uuid.NewString(),
		UserID:         userID,
		Provider:       provider,
		SecretEnc:      token,
		Alias:          alias,
		CallsRemaining: s.defaultQuota,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, cred); err != nil {
		return models.CredentialInfo{}, err
	}

	s.logger.Info(ctx, "credential added",
		"user_id", userID, "provider", provider, "alias", alias, "active", cred.IsActive)

	return cred.Info(), nil
}

// ListCredentials returns the user's credentials in creation order. Secrets,
// encrypted or not, never appear in the result.
func (s *Service) ListCredentials(ctx context.Context, userID int64) ([]models.CredentialInfo, error) {
	list, err := s.repo.SelectByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]models.CredentialInfo, 0, len(list))
	for _, cred := range list {
		result = append(result, cred.Info())
	}
	return result, nil
}

// Activate makes the credential the single active one for its (owner,
// provider) pair. Returns common.ErrNotFound when the id does not belong to
// the user.
func (s *Service) Activate(ctx context.Context, userID int64, credentialID string) error {
	if err := s.repo.Activate(ctx, userID, credentialID); err != nil {
		return err
	}
	s.logger.Info(ctx, "credential activated", "user_id", userID, "credential_id", credentialID)
	return nil
}

// ResolveActive returns the decrypted secret of the user's active credential
// for the provider. This is the only plaintext egress from the vault.
//
// Fails with common.ErrNoActiveKey when no credential is marked active,
// common.ErrQuotaExhausted when the active credential has no calls left, and
// common.ErrInvalidToken when the stored token cannot be decrypted under the
// configured master secret (corrupted or wrong key; reported, never ignored).
func (s *Service) ResolveActive(ctx context.Context, userID int64, provider string) (ActiveKey, error) {
	cred, err := s.repo.SelectActive(ctx, userID, provider)
	if errors.Is(err, common.ErrNotFound) {
		return ActiveKey{}, fmt.Errorf("%w: provider %s", common.ErrNoActiveKey, provider)
	}
	if err != nil {
		return ActiveKey{}, err
	}

	if cred.CallsRemaining <= 0 {
		return ActiveKey{}, fmt.Errorf("%w: credential %s", common.ErrQuotaExhausted, cred.Alias)
	}

	secret, err := s.cipher.Decrypt(cred.SecretEnc)
	if err != nil {
		s.logger.Error(ctx, "credential unreadable",
			"user_id", userID, "provider", provider, "credential_id", cred.ID, "error", err)
		return ActiveKey{}, err
	}

	return ActiveKey{CredentialID: cred.ID, Secret: []byte(secret)}, nil
}

// Decrement reduces the credential's remaining counter by one, floored at
// zero. The orchestrator calls it exactly once per successful provider call.
func (s *Service) Decrement(ctx context.Context, credentialID string) error {
	return s.repo.DecrementCalls(ctx, credentialID)
}
