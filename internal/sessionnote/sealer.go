package sessionnote

import (
	"errors"

	"github.com/smallbiznis/carelog/internal/config"
	"github.com/smallbiznis/carelog/pkg/sealbox"
	"go.uber.org/zap"
)

const developmentSealKey = "carelog-development-seal-key"

// NewSealer builds the sealer shared by every clinical store. Production
// refuses to start without CLINICAL_SEAL_KEY.
func NewSealer(cfg config.Config, log *zap.Logger) (*sealbox.Sealer, error) {
	raw := cfg.Clinical.SealKey
	if raw == "" {
		if cfg.IsProduction() {
			return nil, errors.New("CLINICAL_SEAL_KEY is required in production")
		}
		log.Warn("CLINICAL_SEAL_KEY not set, using development key")
		raw = developmentSealKey
	}
	key, err := sealbox.KeyFromString(raw)
	if err != nil {
		return nil, err
	}
	return sealbox.New(key)
}
