package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Config defines how staff tokens are signed and verified.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

type staffClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Staff is the identity carried by a verified token.
type Staff struct {
	UID   string
	Name  string
	Email string
}

type Authenticator struct {
	cfg Config
}

func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("auth issuer and audience are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{cfg: cfg}, nil
}

// Mint signs an HS256 token for the staff member valid for ttl.
func (a *Authenticator) Mint(staff Staff, ttl time.Duration) (string, error) {
	if strings.TrimSpace(staff.UID) == "" {
		return "", errors.New("staff uid is required")
	}
	now := a.cfg.Now()
	claims := staffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.cfg.Issuer,
			Subject:   staff.UID,
			Audience:  jwt.ClaimStrings{a.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Name:  staff.Name,
		Email: staff.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry.
func (a *Authenticator) Verify(token string) (Staff, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Staff{}, ErrUnauthenticated
	}

	var claims staffClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithAudience(a.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.cfg.Now),
	)
	if err != nil {
		return Staff{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Staff{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return Staff{UID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

type staffKey struct{}

func WithStaff(ctx context.Context, staff Staff) context.Context {
	return context.WithValue(ctx, staffKey{}, staff)
}

func StaffFromContext(ctx context.Context) (Staff, bool) {
	staff, ok := ctx.Value(staffKey{}).(Staff)
	return staff, ok
}
