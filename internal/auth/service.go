package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"

	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// DefaultRole is granted to self-registered accounts.
const DefaultRole = rbac.RoleCustomer

// ErrInvalidResetToken covers expired, forged and already used reset tokens.
var ErrInvalidResetToken = fmt.Errorf("invalid or expired reset token: %w", httpx.ErrUnauthorized)

// ResetNotifier delivers a password reset token to its owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenIssuer
	notifier ResetNotifier
	cost     int
}

// NewService constructs a new Service. notifier may be nil when password
// recovery is not offered.
func NewService(repo Repository, tokens *TokenIssuer, notifier ResetNotifier) *Service {
	return &Service{repo: repo, tokens: tokens, notifier: notifier, cost: bcrypt.DefaultCost}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, shared.ErrInactiveAccount
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Register creates an active account holding DefaultRole.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, NewUser{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        normalizeEmail(in.Email),
		PasswordHash: string(hash),
	}, string(DefaultRole))
}

// RequestPasswordReset issues a reset token for an active account and hands
// it to the notifier. Unknown and inactive emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.notifier == nil {
		return errors.New("auth: password recovery is not configured")
	}
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive() {
		return nil
	}
	token, tokenID, expires, err := s.tokens.IssueReset(user)
	if err != nil {
		return err
	}
	if err := s.repo.SetRecoveryToken(ctx, user.ID, tokenID); err != nil {
		return err
	}
	return s.notifier.SendPasswordReset(ctx, user.Email, token, expires)
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	userID, tokenID, err := s.tokens.ParseReset(in.Token)
	if err != nil {
		return ErrInvalidResetToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return err
	}
	if err := s.repo.ResetPassword(ctx, userID, tokenID, string(hash)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
