package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ticketslave/ticketslave/internal/shared"
)

const (
	tokenIssuer = "ticketslave"

	audienceAccess = "access"
	audienceReset  = "password-reset"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload: the subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and password reset tokens. The
// two kinds carry different audiences and are never accepted for each other.
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	resetTTL time.Duration
	now      func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl, resetTTL time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = 15 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, resetTTL: resetTTL, now: time.Now}
}

// Issue signs a token for u.
func (t *TokenIssuer) Issue(u *User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{audienceAccess},
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies raw and returns the principal it asserts.
func (t *TokenIssuer) Parse(raw string) (*shared.Principal, error) {
	claims, id, err := t.verify(raw, audienceAccess)
	if err != nil {
		return nil, err
	}
	return &shared.Principal{UserID: id, Email: claims.Email, Role: claims.Role}, nil
}

// IssueReset signs a single-use password reset token for u. The returned id
// must be stored with the user so the token can be consumed exactly once.
func (t *TokenIssuer) IssueReset(u *User) (token, id string, expires time.Time, err error) {
	now := t.now()
	expires = now.Add(t.resetTTL)
	id = uuid.NewString()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{audienceReset},
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("auth: sign reset token: %w", err)
	}
	return token, id, expires, nil
}

// ParseReset verifies a password reset token and returns its user and token id.
func (t *TokenIssuer) ParseReset(raw string) (userID int64, id string, err error) {
	claims, userID, err := t.verify(raw, audienceReset)
	if err != nil {
		return 0, "", err
	}
	if claims.ID == "" {
		return 0, "", fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}
	return userID, claims.ID, nil
}

func (t *TokenIssuer) verify(raw, audience string) (*Claims, int64, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return &claims, id, nil
}
