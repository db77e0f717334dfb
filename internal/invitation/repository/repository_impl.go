package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/invitation/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, inv *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *repository) Get(ctx context.Context, orgID, id snowflake.ID) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) ListPending(ctx context.Context, orgID snowflake.ID) ([]domain.Invitation, error) {
	var items []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ?", orgID, domain.StatusPending).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) EmailInUse(ctx context.Context, orgID snowflake.ID, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Where("org_id = ? AND LOWER(email) = ? AND status <> ?", orgID, email, identitydomain.UserStatusDeleted).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) SetStatus(ctx context.Context, id snowflake.ID, from, to domain.Status, acceptedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if acceptedAt != nil {
		updates["accepted_at"] = *acceptedAt
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ActivateUser(ctx context.Context, userID snowflake.ID, subject string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Where("id = ? AND status = ?", userID, identitydomain.UserStatusPending).
		Updates(map[string]any{
			"external_subject": subject,
			"status":           identitydomain.UserStatusActive,
			"updated_at":       at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
