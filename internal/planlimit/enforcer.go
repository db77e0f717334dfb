// Package planlimit bounds the staff an organization may hold on its plan.
package planlimit

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carelog/internal/config"
	identitydomain "github.com/smallbiznis/carelog/internal/identity/domain"
	orgdomain "github.com/smallbiznis/carelog/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrPlanLimitReached = errors.New("PLAN_LIMIT_REACHED")

// Quota is the effective staffing limit of one organization.
type Quota struct {
	Plan                     orgdomain.Plan `json:"plan"`
	AllowPsychologistInvites bool           `json:"allow_psychologist_invites"`
	AssistantsMax            int            `json:"assistants_max"`
}

// Usage counts ACTIVE and PENDING holders of the limited roles.
type Usage struct {
	Assistants    int64 `json:"assistants"`
	Psychologists int64 `json:"psychologists"`
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Plans *config.PlanConfigHolder
}

type Enforcer struct {
	log   *zap.Logger
	plans *config.PlanConfigHolder
}

func NewEnforcer(p Params) *Enforcer {
	return &Enforcer{
		log:   p.Log.Named("planlimit"),
		plans: p.Plans,
	}
}

// QuotaFor resolves the quota of orgID as if it were on plan. tx may be a
// transaction holding the organization row lock.
func (e *Enforcer) QuotaFor(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, plan orgdomain.Plan) (Quota, error) {
	base := e.plans.Get().Quota(string(plan))
	quota := Quota{
		Plan:                     plan,
		AllowPsychologistInvites: base.AllowPsychologistInvites,
		AssistantsMax:            base.AssistantsMax,
	}
	if plan == orgdomain.PlanSolo {
		quota.AllowPsychologistInvites = false
		if quota.AssistantsMax > config.SoloAssistantsMax {
			quota.AssistantsMax = config.SoloAssistantsMax
		}
		return quota, nil
	}

	var override orgdomain.PlanLimit
	err := tx.WithContext(ctx).Where("org_id = ?", orgID).Take(&override).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return Quota{}, err
	default:
		quota.AssistantsMax = override.AssistantsMax
	}
	return quota, nil
}

func (e *Enforcer) Usage(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (Usage, error) {
	var usage Usage
	var err error
	if usage.Assistants, err = countHolders(ctx, tx, orgID, identitydomain.RoleAssistant); err != nil {
		return Usage{}, err
	}
	if usage.Psychologists, err = countHolders(ctx, tx, orgID, identitydomain.RolePsychologist); err != nil {
		return Usage{}, err
	}
	return usage, nil
}

// CheckInvite must run inside the invitation transaction after the
// organization row has been locked.
func (e *Enforcer) CheckInvite(ctx context.Context, tx *gorm.DB, org orgdomain.Organization, role identitydomain.Role) error {
	if role != identitydomain.RoleAssistant && role != identitydomain.RolePsychologist {
		return nil
	}

	quota, err := e.QuotaFor(ctx, tx, org.ID, org.Plan)
	if err != nil {
		return err
	}

	if role == identitydomain.RolePsychologist {
		if !quota.AllowPsychologistInvites {
			e.log.Info("psychologist invite blocked by plan",
				zap.String("org_id", org.ID.String()),
				zap.String("plan", string(org.Plan)),
			)
			return ErrPlanLimitReached
		}
		return nil
	}

	count, err := countHolders(ctx, tx, org.ID, role)
	if err != nil {
		return err
	}
	if count >= int64(quota.AssistantsMax) {
		e.log.Info("assistant quota reached",
			zap.String("org_id", org.ID.String()),
			zap.String("plan", string(org.Plan)),
			zap.Int64("count", count),
			zap.Int("max", quota.AssistantsMax),
		)
		return ErrPlanLimitReached
	}
	return nil
}

// CheckActivate guards a member returning to ACTIVE. The member is not yet
// counted, so the limited roles they hold must still have room. Like
// CheckInvite it runs after the organization row has been locked.
func (e *Enforcer) CheckActivate(ctx context.Context, tx *gorm.DB, org orgdomain.Organization, roles identitydomain.RoleSet) error {
	if !roles.HasAny(identitydomain.RoleAssistant, identitydomain.RolePsychologist) {
		return nil
	}

	quota, err := e.QuotaFor(ctx, tx, org.ID, org.Plan)
	if err != nil {
		return err
	}
	usage, err := e.Usage(ctx, tx, org.ID)
	if err != nil {
		return err
	}

	if roles.Has(identitydomain.RoleAssistant) && usage.Assistants >= int64(quota.AssistantsMax) {
		e.log.Info("assistant reactivation blocked by plan",
			zap.String("org_id", org.ID.String()),
			zap.String("plan", string(org.Plan)),
			zap.Int64("count", usage.Assistants),
			zap.Int("max", quota.AssistantsMax),
		)
		return ErrPlanLimitReached
	}
	// a solo practice keeps exactly one psychologist
	if roles.Has(identitydomain.RolePsychologist) && !quota.AllowPsychologistInvites && usage.Psychologists >= 1 {
		e.log.Info("psychologist reactivation blocked by plan",
			zap.String("org_id", org.ID.String()),
			zap.String("plan", string(org.Plan)),
		)
		return ErrPlanLimitReached
	}
	return nil
}

// Fits reports whether the current staff of orgID stays within plan.
func (e *Enforcer) Fits(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, plan orgdomain.Plan) (bool, error) {
	quota, err := e.QuotaFor(ctx, tx, orgID, plan)
	if err != nil {
		return false, err
	}
	usage, err := e.Usage(ctx, tx, orgID)
	if err != nil {
		return false, err
	}
	if usage.Assistants > int64(quota.AssistantsMax) {
		return false, nil
	}
	if !quota.AllowPsychologistInvites {
		// the owner of a solo practice is its only psychologist
		return usage.Psychologists <= 1, nil
	}
	return true, nil
}

func countHolders(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, role identitydomain.Role) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Table("users").
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("users.org_id = ? AND user_roles.role = ?", orgID, role).
		Where("users.status IN ?", []identitydomain.UserStatus{
			identitydomain.UserStatusActive,
			identitydomain.UserStatusPending,
		}).
		Count(&count).Error
	return count, err
}
