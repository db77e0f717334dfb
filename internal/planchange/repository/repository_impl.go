package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/planchange/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) Insert(ctx context.Context, req *domain.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) Lock(ctx context.Context, id snowflake.ID) (*domain.Request, error) {
	var req domain.Request
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) Decide(ctx context.Context, req *domain.Request) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ? AND status = ?", req.ID, domain.StatusPending).
		Updates(map[string]any{
			"status":         req.Status,
			"pending_org_id": nil,
			"decided_by":     req.DecidedBy,
			"decided_at":     req.DecidedAt,
			"decision_note":  req.DecisionNote,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotPending
	}
	return nil
}

func (r *repository) List(ctx context.Context, orgID *snowflake.ID, status domain.Status) ([]domain.Request, error) {
	query := r.db.WithContext(ctx)
	if orgID != nil {
		query = query.Where("org_id = ?", *orgID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []domain.Request
	if err := query.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
