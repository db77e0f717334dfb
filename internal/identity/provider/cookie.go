package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/identity/domain"
)

type CookieConfig struct {
	Name     string
	HashKey  string
	BlockKey string
}

type cookiePayload struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

// CookieVerifier opens session cookies sealed by the identity gateway.
type CookieVerifier struct {
	name  string
	codec *securecookie.SecureCookie
	clock clock.Clock
}

func NewCookieVerifier(cfg CookieConfig, clk clock.Clock) (*CookieVerifier, error) {
	hashKey := strings.TrimSpace(cfg.HashKey)
	if hashKey == "" {
		return nil, errors.New("cookie hash key is required")
	}
	var blockKey []byte
	if key := strings.TrimSpace(cfg.BlockKey); key != "" {
		blockKey = []byte(key)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "_sid"
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	codec := securecookie.New([]byte(hashKey), blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &CookieVerifier{name: name, codec: codec, clock: clk}, nil
}

func (v *CookieVerifier) Name() string { return v.name }

func (v *CookieVerifier) Verify(_ context.Context, credential string) (domain.Claims, error) {
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return domain.Claims{}, domain.ErrMissingCredential
	}
	var payload cookiePayload
	if err := v.codec.Decode(v.name, raw, &payload); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.ExpiresAt == 0 {
		return domain.Claims{}, domain.ErrInvalidCredential
	}
	expiresAt := time.Unix(payload.ExpiresAt, 0).UTC()
	if !v.clock.Now().Before(expiresAt) {
		return domain.Claims{}, fmt.Errorf("%w: session expired", domain.ErrInvalidCredential)
	}
	return domain.Claims{
		Subject:   strings.TrimSpace(payload.Subject),
		Email:     strings.TrimSpace(payload.Email),
		ExpiresAt: expiresAt,
	}, nil
}

// Encode seals claims into a cookie value the way the gateway does.
func (v *CookieVerifier) Encode(claims domain.Claims) (string, error) {
	return v.codec.Encode(v.name, cookiePayload{
		Subject:   claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}
