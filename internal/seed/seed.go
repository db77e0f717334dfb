package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSuperadminName = "Carelog Admin"

// EnsureSuperadmin binds the configured identity-provider subject to a local
// SUPERADMIN user. It is a no-op when no subject is configured and never
// touches an existing user's roles beyond adding SUPERADMIN.
func EnsureSuperadmin(db *gorm.DB, cfg config.BootstrapConfig, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	subject := strings.TrimSpace(cfg.SuperadminSubject)
	if subject == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var user identitydomain.User
		err := tx.Where("external_subject = ?", subject).First(&user).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			email := strings.ToLower(strings.TrimSpace(cfg.SuperadminEmail))
			user = identitydomain.User{
				ID:              node.Generate(),
				ExternalSubject: &subject,
				Email:           email,
				FirstName:       defaultSuperadminName,
				LastName:        "",
				Status:          identitydomain.UserStatusActive,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			log.Info("superadmin user created", zap.String("user_id", user.ID.String()))
		}

		var count int64
		if err := tx.Model(&identitydomain.UserRole{}).
			Where("user_id = ? AND role = ?", user.ID, identitydomain.RoleSuperadmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&identitydomain.UserRole{
			UserID:    user.ID,
			Role:      identitydomain.RoleSuperadmin,
			CreatedAt: now,
		}).Error
	})
}
