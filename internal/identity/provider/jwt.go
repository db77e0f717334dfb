// Package provider verifies credentials minted by the external identity
// provider. Nothing here issues credentials for production use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/identity/domain"
)

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	clock    clock.Clock
}

func NewJWTVerifier(cfg JWTConfig, clk clock.Clock) (*JWTVerifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &JWTVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
		clock:    clk,
	}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (domain.Claims, error) {
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return domain.Claims{}, domain.ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return domain.Claims{}, domain.ErrInvalidCredential
	}

	out := domain.Claims{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(claims.Email),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// SignJWT mints a token the way the identity provider does. Used by tests
// and local tooling.
func SignJWT(cfg JWTConfig, claims domain.Claims, issuedAt time.Time) (string, error) {
	registered := jwt.RegisteredClaims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	}
	if cfg.Issuer != "" {
		registered.Issuer = cfg.Issuer
	}
	if cfg.Audience != "" {
		registered.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email:            claims.Email,
		RegisteredClaims: registered,
	})
	return token.SignedString([]byte(cfg.Secret))
}
