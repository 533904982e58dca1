package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanConfig carries the price references and grant amounts the billing
// engine needs to project events and build promotional schedules. It is
// reloadable at runtime so price rotations do not require a restart.
type PlanConfig struct {
	StandardPriceID string `mapstructure:"standardPriceId"`
	PromoPriceID    string `mapstructure:"promoPriceId"`
	AnnualPriceID   string `mapstructure:"annualPriceId"`
	LifetimePriceID string `mapstructure:"lifetimePriceId"`

	// PromoPhaseDays is the length of the discounted intro phase.
	PromoPhaseDays int `mapstructure:"promoPhaseDays"`

	// CreditGrants maps product type to the one-time credit grant amount.
	CreditGrants map[string]int `mapstructure:"creditGrants"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		StandardPriceID: "price_standard_monthly",
		PromoPriceID:    "price_intro_weekly",
		AnnualPriceID:   "price_annual",
		LifetimePriceID: "price_lifetime",
		PromoPhaseDays:  7,
		CreditGrants: map[string]int{
			"annual":   2,
			"lifetime": 6,
			"bundle_3": 3,
			"bundle_6": 6,
		},
	}
}

// PromoPhaseDuration returns the intro phase length as a duration.
func (c PlanConfig) PromoPhaseDuration() time.Duration {
	return time.Duration(c.PromoPhaseDays) * 24 * time.Hour
}

// CreditGrant returns the grant for a product type, zero when ungranted.
func (c PlanConfig) CreditGrant(productType string) int {
	return c.CreditGrants[strings.TrimSpace(productType)]
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/orrery/config") // Volume-mounted config
	v.AddConfigPath("/etc/orrery")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("ORRERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanConfig()
		v.SetDefault("plans.standardPriceId", defaults.StandardPriceID)
		v.SetDefault("plans.promoPriceId", defaults.PromoPriceID)
		v.SetDefault("plans.annualPriceId", defaults.AnnualPriceID)
		v.SetDefault("plans.lifetimePriceId", defaults.LifetimePriceID)
		v.SetDefault("plans.promoPhaseDays", defaults.PromoPhaseDays)
		v.SetDefault("plans.creditGrants", defaults.CreditGrants)
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanConfigHolder wraps a fixed config, bypassing file watching.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

func validatePlanConfig(cfg PlanConfig) error {
	if strings.TrimSpace(cfg.StandardPriceID) == "" {
		return errors.New("plans.standardPriceId cannot be empty")
	}
	if strings.TrimSpace(cfg.PromoPriceID) == "" {
		return errors.New("plans.promoPriceId cannot be empty")
	}
	if cfg.PromoPhaseDays <= 0 {
		return errors.New("plans.promoPhaseDays must be positive")
	}
	return nil
}
