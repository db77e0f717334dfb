package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/mood/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, entry *domain.MoodEntry) (*domain.MoodEntry, bool, error) {
	var stored domain.MoodEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}, {Name: "entry_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "updated_at"}),
		}).Create(entry).Error; err != nil {
			return err
		}
		return tx.
			Where("patient_id = ? AND entry_date = ?", entry.PatientID, entry.EntryDate).
			First(&stored).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &stored, stored.ID == entry.ID, nil
}

func (r *repository) ListForPatient(ctx context.Context, patientID snowflake.ID, from, to string) ([]domain.MoodEntry, error) {
	query := r.db.WithContext(ctx).Where("patient_id = ?", patientID)
	if from != "" {
		query = query.Where("entry_date >= ?", from)
	}
	if to != "" {
		query = query.Where("entry_date <= ?", to)
	}
	var entries []domain.MoodEntry
	if err := query.Order("entry_date ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
