package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/assignment/domain"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
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

func (r *repository) Insert(ctx context.Context, a *domain.PatientAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// End closes an ACTIVE row. It matches on status so a concurrent end of the
// same row affects nothing and reports ErrNoActiveAssignment.
func (r *repository) End(ctx context.Context, a *domain.PatientAssignment) error {
	result := r.db.WithContext(ctx).
		Model(&domain.PatientAssignment{}).
		Where("id = ? AND status = ?", a.ID, domain.StatusActive).
		Updates(map[string]any{
			"status":            domain.StatusEnded,
			"active_patient_id": nil,
			"ended_at":          a.EndedAt,
			"ended_by":          a.EndedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNoActiveAssignment
	}
	a.Status = domain.StatusEnded
	a.ActivePatientID = nil
	return nil
}

func (r *repository) ActiveForPatient(ctx context.Context, patientID snowflake.ID) (*domain.PatientAssignment, error) {
	var row domain.PatientAssignment
	err := r.db.WithContext(ctx).
		Where("active_patient_id = ?", patientID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoActiveAssignment
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) HistoryForPatient(ctx context.Context, patientID snowflake.ID) ([]domain.PatientAssignment, error) {
	var rows []domain.PatientAssignment
	if err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("started_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetPointer(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Where("id = ?", patientID).
		Update("assigned_psychologist_id", psychologistID).Error
}

func (r *repository) ListPatientsOf(ctx context.Context, orgID, psychologistID snowflake.ID) ([]identitydomain.User, error) {
	var users []identitydomain.User
	if err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Joins("JOIN patient_assignments pa ON pa.patient_id = users.id AND pa.status = ?", domain.StatusActive).
		Where("pa.psychologist_id = ? AND users.org_id = ? AND users.status <> ?", psychologistID, orgID, identitydomain.UserStatusDeleted).
		Order("users.last_name ASC").
		Order("users.first_name ASC").
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListUnassigned returns ACTIVE patients of the organization with no ACTIVE
// assignment.
func (r *repository) ListUnassigned(ctx context.Context, orgID snowflake.ID) ([]identitydomain.User, error) {
	var users []identitydomain.User
	if err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Joins("JOIN user_roles ur ON ur.user_id = users.id AND ur.role = ?", identitydomain.RolePatient).
		Where("users.org_id = ? AND users.status = ?", orgID, identitydomain.UserStatusActive).
		Where("NOT EXISTS (SELECT 1 FROM patient_assignments pa WHERE pa.active_patient_id = users.id)").
		Order("users.last_name ASC").
		Order("users.first_name ASC").
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
