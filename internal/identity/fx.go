package identity

import (
	"time"

	"github.com/smallbiznis/carelog/internal/clock"
	"github.com/smallbiznis/carelog/internal/config"
	"github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/identity/provider"
	"github.com/smallbiznis/carelog/internal/identity/repository"
	"github.com/smallbiznis/carelog/internal/identity/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(fx.Annotate(provideBearerVerifier, fx.ResultTags(`name:"bearer"`))),
	fx.Provide(fx.Annotate(provideCookieVerifier, fx.ResultTags(`name:"cookie"`))),
	fx.Provide(service.NewService),
)

func provideBearerVerifier(cfg config.Config, clk clock.Clock, log *zap.Logger) (domain.Verifier, error) {
	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET not set, bearer tokens will be rejected")
		return nil, nil
	}
	v, err := provider.NewJWTVerifier(provider.JWTConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		Leeway:   time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
	}, clk)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func provideCookieVerifier(cfg config.Config, clk clock.Clock, log *zap.Logger) (domain.Verifier, error) {
	if cfg.Auth.CookieHashKey == "" {
		log.Warn("AUTH_COOKIE_HASH_KEY not set, session cookies will be rejected")
		return nil, nil
	}
	v, err := provider.NewCookieVerifier(provider.CookieConfig{
		Name:     cfg.Auth.CookieName,
		HashKey:  cfg.Auth.CookieHashKey,
		BlockKey: cfg.Auth.CookieBlockKey,
	}, clk)
	if err != nil {
		return nil, err
	}
	return v, nil
}
