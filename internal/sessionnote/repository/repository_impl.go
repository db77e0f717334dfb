package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/sessionnote/domain"
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

func (r *repository) Insert(ctx context.Context, note *domain.SessionNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.SessionNote, error) {
	var note domain.SessionNote
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *repository) GetDaily(ctx context.Context, patientID, psychologistID snowflake.ID, day string) (*domain.SessionNote, error) {
	var note domain.SessionNote
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND psychologist_id = ? AND session_date = ?", patientID, psychologistID, day).
		First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateContent rewrites the note only while editable_until is after
// editableAfter. It reports false when the window had already closed.
func (r *repository) UpdateContent(ctx context.Context, id snowflake.ID, content string, editableAfter time.Time, updatedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.SessionNote{}).
		Where("id = ? AND editable_until > ?", id, editableAfter).
		Updates(map[string]any{
			"content":    content,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListForPatient(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) ([]domain.SessionNote, error) {
	query := r.db.WithContext(ctx).Where("patient_id = ?", patientID)
	if psychologistID != nil {
		query = query.Where("psychologist_id = ?", *psychologistID)
	}
	var notes []domain.SessionNote
	if err := query.
		Order("session_date DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
