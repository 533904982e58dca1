// Package domain defines the promotional price schedule orchestration
// contract.
package domain

import (
	"context"
	"time"

	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
)

// ScheduleEvent is the slice of a provider schedule webhook the rollover
// logic needs.
type ScheduleEvent struct {
	ScheduleID string
	Completed  bool
	Phases     []providerdomain.SchedulePhase
}

type Service interface {
	// AttachPromoSchedule converts a fresh subscription into a two-phase
	// schedule: a discounted intro phase followed by the standard price.
	// The subscription itself is already live, so a partial failure here
	// degrades the account to the standard price path instead of failing
	// the checkout.
	AttachPromoSchedule(ctx context.Context, accountID, subscriptionID string, periodStart time.Time) error
	// HandleScheduleEvent flips promo accounts onto the standard plan once
	// the intro phase is behind them. Safe under redelivery.
	HandleScheduleEvent(ctx context.Context, event ScheduleEvent) error
}
