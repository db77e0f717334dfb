package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, note *SessionNote) error
	Get(ctx context.Context, id snowflake.ID) (*SessionNote, error)
	GetDaily(ctx context.Context, patientID, psychologistID snowflake.ID, day string) (*SessionNote, error)
	UpdateContent(ctx context.Context, id snowflake.ID, content string, editableAfter time.Time, updatedAt time.Time) (bool, error)
	ListForPatient(ctx context.Context, patientID snowflake.ID, psychologistID *snowflake.ID) ([]SessionNote, error)
}

type Service interface {
	Create(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID, content string) (*Note, error)
	Update(ctx context.Context, principal identitydomain.Principal, noteID snowflake.ID, content string) (*Note, error)
	Get(ctx context.Context, principal identitydomain.Principal, noteID snowflake.ID) (*Note, error)
	ListForPatient(ctx context.Context, principal identitydomain.Principal, patientID snowflake.ID) ([]Note, error)
}

type ContentRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

var (
	ErrContentRequired    = errors.New("content_required")
	ErrNotAssigned        = errors.New("not_assigned")
	ErrNotAuthor          = errors.New("not_author")
	ErrNoteNotFound       = errors.New("session_note_not_found")
	ErrAlreadyExistsToday = errors.New("ALREADY_EXISTS_TODAY")
	ErrSessionLocked      = errors.New("SESSION_LOCKED")
	ErrLocked             = errors.New("LOCKED")
)

// ExistsTodayError reports the note that blocked a second create on the
// same day while it is still editable.
type ExistsTodayError struct {
	ExistingID snowflake.ID
}

func (e *ExistsTodayError) Error() string {
	return fmt.Sprintf("session note %s already exists today", e.ExistingID)
}

func (e *ExistsTodayError) Unwrap() error { return ErrAlreadyExistsToday }
