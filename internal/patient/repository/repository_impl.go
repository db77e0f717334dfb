package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/carelog/internal/assignment/domain"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/patient/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) ListInOrg(ctx context.Context, orgID snowflake.ID) ([]identitydomain.User, error) {
	var users []identitydomain.User
	if err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Joins("JOIN user_roles ur ON ur.user_id = users.id AND ur.role = ?", identitydomain.RolePatient).
		Where("users.org_id = ? AND users.status <> ?", orgID, identitydomain.UserStatusDeleted).
		Order("users.last_name ASC").
		Order("users.first_name ASC").
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListAssignedTo reads the ledger, not the denormalized pointer.
func (r *repository) ListAssignedTo(ctx context.Context, orgID, psychologistID snowflake.ID) ([]identitydomain.User, error) {
	var users []identitydomain.User
	if err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Joins("JOIN patient_assignments pa ON pa.active_patient_id = users.id").
		Where("pa.psychologist_id = ? AND pa.status = ?", psychologistID, assignmentdomain.StatusActive).
		Where("users.org_id = ? AND users.status <> ?", orgID, identitydomain.UserStatusDeleted).
		Order("users.last_name ASC").
		Order("users.first_name ASC").
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
