package domain

import (
	"context"

	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
)

// ProjectRequest carries everything needed to project provider subscription
// state onto the local record. Remote may be nil for synthetic upserts such
// as lifetime purchases.
type ProjectRequest struct {
	AccountID string
	PlanType  PlanType
	Remote    *providerdomain.Subscription

	// ForceStatus overrides the mapped provider status, used by deletion
	// events which always land on canceled.
	ForceStatus Status
}

type Service interface {
	Project(ctx context.Context, req ProjectRequest) (*Subscription, error)
	GetByAccountID(ctx context.Context, accountID string) (*Subscription, error)
	GetByScheduleID(ctx context.Context, scheduleID string) (*Subscription, error)
	GetByExternalSubscriptionID(ctx context.Context, externalID string) (*Subscription, error)
	// RecordSchedule persists the price schedule attachment outcome.
	RecordSchedule(ctx context.Context, accountID string, scheduleID *string, promoUsed bool) error
	// SwitchPlan moves the account onto another plan in place, used when the
	// promotional phase rolls over to the standard price.
	SwitchPlan(ctx context.Context, accountID string, planType PlanType, priceID *string) error
}
