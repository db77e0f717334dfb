package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	"github.com/smallbiznis/carelog/internal/organization/domain"
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

func (r *repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) LockOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var orgs []domain.Organization
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) UpdatePlan(ctx context.Context, id snowflake.ID, plan domain.Plan, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", id).
		Updates(map[string]any{"plan": plan, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Organization{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateUser(ctx context.Context, user *identitydomain.User, roles []identitydomain.Role) error {
	if err := r.db.WithContext(ctx).Omit("Roles").Create(user).Error; err != nil {
		return err
	}
	rows := make([]identitydomain.UserRole, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, identitydomain.UserRole{UserID: user.ID, Role: role, CreatedAt: user.CreatedAt})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	user.Roles = rows
	return nil
}

func (r *repository) GetMember(ctx context.Context, orgID, userID snowflake.ID) (*identitydomain.User, error) {
	var user identitydomain.User
	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("id = ? AND org_id = ? AND status <> ?", userID, orgID, identitydomain.UserStatusDeleted).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID, filter domain.MemberFilter) ([]identitydomain.User, error) {
	query := r.db.WithContext(ctx).
		Preload("Roles").
		Where("users.org_id = ? AND users.status <> ?", orgID, identitydomain.UserStatusDeleted)
	if filter.Status != "" {
		query = query.Where("users.status = ?", filter.Status)
	}
	if filter.Role != "" {
		query = query.Where("EXISTS (SELECT 1 FROM user_roles WHERE user_roles.user_id = users.id AND user_roles.role = ?)", filter.Role)
	}

	var users []identitydomain.User
	if err := query.Order("users.last_name ASC, users.first_name ASC, users.id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) SetUserStatus(ctx context.Context, userID snowflake.ID, status identitydomain.UserStatus, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"status": status, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) EndAssignmentsOf(ctx context.Context, userID, endedBy snowflake.ID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Table("patient_assignments").
		Where("status = ? AND (patient_id = ? OR psychologist_id = ?)", "ACTIVE", userID, userID).
		Updates(map[string]any{
			"status":            "ENDED",
			"active_patient_id": nil,
			"ended_at":          at,
			"ended_by":          endedBy,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if err := r.db.WithContext(ctx).
		Model(&identitydomain.User{}).
		Where("id = ? OR assigned_psychologist_id = ?", userID, userID).
		Update("assigned_psychologist_id", nil).Error; err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (r *repository) RevokeInvitationsOf(ctx context.Context, userID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Table("invitations").
		Where("user_id = ? AND status = ?", userID, "PENDING").
		Update("status", "REVOKED").Error
}
