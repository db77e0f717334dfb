package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/clinicalentry/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, entry *domain.ClinicalEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListForPatient returns entries oldest first. With psychologistID set, only
// entries of assignments held by that psychologist are returned.
func (r *repository) ListForPatient(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) ([]domain.ClinicalEntry, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.ClinicalEntry{}).
		Where("clinical_entries.patient_id = ?", patientID)
	if psychologistID != nil {
		query = query.
			Joins("JOIN patient_assignments pa ON pa.id = clinical_entries.assignment_id").
			Where("pa.psychologist_id = ?", *psychologistID)
	}
	var entries []domain.ClinicalEntry
	if err := query.
		Order("clinical_entries.created_at ASC").
		Order("clinical_entries.id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

