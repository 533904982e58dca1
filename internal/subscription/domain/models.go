// Package domain contains the persistence model for the locally projected
// subscription state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents the local subscription lifecycle. Every provider status
// maps onto one of these.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// MapProviderStatus collapses the provider's status vocabulary into the
// local lifecycle. Unknown statuses map to expired rather than failing so a
// new provider state never blocks ingestion.
func MapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	default:
		return StatusExpired
	}
}

// PlanType identifies the commercial plan a subscription is on.
type PlanType string

const (
	PlanStandard   PlanType = "standard"
	PlanPromoIntro PlanType = "promo_intro"
	PlanAnnual     PlanType = "annual"
	PlanLifetime   PlanType = "lifetime"
)

// ParsePlanType validates a metadata-supplied plan type.
func ParsePlanType(value string) (PlanType, bool) {
	switch PlanType(value) {
	case PlanStandard, PlanPromoIntro, PlanAnnual, PlanLifetime:
		return PlanType(value), true
	default:
		return "", false
	}
}

// Subscription is the locally projected copy of the provider's subscription
// state, keyed one row per account. PeriodEnd is nil only for lifetime
// plans; everything else carries a concrete renewal boundary.
type Subscription struct {
	ID                     snowflake.ID      `gorm:"primaryKey"`
	AccountID              string            `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_account"`
	ExternalCustomerID     string            `gorm:"type:text"`
	ExternalSubscriptionID *string           `gorm:"type:text"`
	ExternalPriceID        *string           `gorm:"type:text"`
	ExternalScheduleID     *string           `gorm:"type:text;index:ix_subscriptions_schedule"`
	PlanType               PlanType          `gorm:"type:text;not null"`
	Status                 Status            `gorm:"type:text;not null"`
	PeriodStart            time.Time         `gorm:"not null"`
	PeriodEnd              *time.Time        `gorm:""`
	CancelAtPeriodEnd      bool              `gorm:"not null;default:false"`
	PromoUsed              bool              `gorm:"not null;default:false"`
	Metadata               datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Validate enforces the lifetime boundary rule.
func (s *Subscription) Validate() error {
	if s.PlanType == PlanLifetime {
		if s.PeriodEnd != nil {
			return ErrPeriodPlanMismatch
		}
		return nil
	}
	if s.PeriodEnd == nil {
		return ErrPeriodPlanMismatch
	}
	return nil
}
