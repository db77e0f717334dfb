package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanQuota bounds the staff an organization on a plan may hold.
type PlanQuota struct {
	AllowPsychologistInvites bool `mapstructure:"allowPsychologistInvites"`
	AssistantsMax            int  `mapstructure:"assistantsMax"`
}

type PlansConfig struct {
	Solo  PlanQuota `mapstructure:"solo"`
	Team  PlanQuota `mapstructure:"team"`
	Trial PlanQuota `mapstructure:"trial"`
}

// SoloAssistantsMax is fixed; only the other plans may raise it.
const SoloAssistantsMax = 1

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		Solo:  PlanQuota{AllowPsychologistInvites: false, AssistantsMax: SoloAssistantsMax},
		Team:  PlanQuota{AllowPsychologistInvites: true, AssistantsMax: 2},
		Trial: PlanQuota{AllowPsychologistInvites: true, AssistantsMax: 2},
	}
}

// Quota returns the quota of the named plan. Unknown plans get the solo quota.
func (p PlansConfig) Quota(plan string) PlanQuota {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case "TEAM":
		return p.Team
	case "TRIAL":
		return p.Trial
	default:
		return p.Solo
	}
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlansConfig
}

// NewStaticPlanConfigHolder returns a holder that never reloads.
func NewStaticPlanConfigHolder(cfg PlansConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlanConfigHolder(log *zap.Logger) (*PlanConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/carelog/config")
	v.AddConfigPath("/etc/carelog")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlansConfig()
	v.SetDefault("plans.solo.allowPsychologistInvites", defaults.Solo.AllowPsychologistInvites)
	v.SetDefault("plans.solo.assistantsMax", defaults.Solo.AssistantsMax)
	v.SetDefault("plans.team.allowPsychologistInvites", defaults.Team.AllowPsychologistInvites)
	v.SetDefault("plans.team.assistantsMax", defaults.Team.AssistantsMax)
	v.SetDefault("plans.trial.allowPsychologistInvites", defaults.Trial.AllowPsychologistInvites)
	v.SetDefault("plans.trial.assistantsMax", defaults.Trial.AssistantsMax)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PlansConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlansConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlanConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlansConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Warn("plan config reload failed", zap.Error(err))
			return
		}
		if err := validatePlansConfig(updated); err != nil {
			log.Warn("invalid plan config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlansConfig {
	if h == nil {
		return DefaultPlansConfig()
	}
	cfg, ok := h.current.Load().(PlansConfig)
	if !ok {
		return DefaultPlansConfig()
	}
	return cfg
}

func validatePlansConfig(cfg PlansConfig) error {
	if cfg.Solo.AllowPsychologistInvites {
		return errors.New("plans.solo cannot allow psychologist invites")
	}
	if cfg.Solo.AssistantsMax > SoloAssistantsMax {
		return errors.New("plans.solo assistantsMax cannot exceed 1")
	}
	if cfg.Solo.AssistantsMax < 0 || cfg.Team.AssistantsMax < 0 || cfg.Trial.AssistantsMax < 0 {
		return errors.New("plans assistantsMax cannot be negative")
	}
	return nil
}
