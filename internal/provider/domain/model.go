// Package domain defines the payment provider's wire shapes and the
// outbound client contract.
package domain

import (
	"context"
	"errors"
	"time"
)

// Subscription is the provider's subscription object as delivered in
// webhook payloads and retrieve calls. Period fields are unix seconds,
// zero when absent; upstream payload shapes are inconsistent, so the
// projector resolves them through a fallback chain.
type Subscription struct {
	ID                 string             `json:"id"`
	Customer           string             `json:"customer"`
	Status             string             `json:"status"`
	CurrentPeriodStart int64              `json:"current_period_start"`
	CurrentPeriodEnd   int64              `json:"current_period_end"`
	StartDate          int64              `json:"start_date"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	Schedule           string             `json:"schedule"`
	Items              SubscriptionItems  `json:"items"`
	Metadata           map[string]string  `json:"metadata"`
}

type SubscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

type SubscriptionItem struct {
	Price              PriceRef `json:"price"`
	CurrentPeriodStart int64    `json:"current_period_start"`
	CurrentPeriodEnd   int64    `json:"current_period_end"`
}

type PriceRef struct {
	ID string `json:"id"`
}

// FirstItem returns the first billed item, nil when the list is empty.
func (s Subscription) FirstItem() *SubscriptionItem {
	if len(s.Items.Data) == 0 {
		return nil
	}
	return &s.Items.Data[0]
}

// Schedule is the provider's subscription schedule object.
type Schedule struct {
	ID           string          `json:"id"`
	Subscription string          `json:"subscription"`
	Status       string          `json:"status"`
	Phases       []SchedulePhase `json:"phases"`
}

type SchedulePhase struct {
	StartDate int64               `json:"start_date"`
	EndDate   int64               `json:"end_date"`
	Items     []SchedulePhaseItem `json:"items"`
}

type SchedulePhaseItem struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// Phase describes one segment of a price schedule to be written remotely.
// A nil End leaves the phase open-ended.
type Phase struct {
	Price    string
	Quantity int64
	Start    time.Time
	End      *time.Time
}

// Client is the outbound payment provider API. Calls are synchronous and
// single-attempt; failures surface as errors so the provider's own webhook
// retry policy drives redelivery.
type Client interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*Schedule, error)
	UpdateSchedulePhases(ctx context.Context, scheduleID string, phases []Phase) (*Schedule, error)
}

var (
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrProviderRejected    = errors.New("provider_rejected")
	ErrNotConfigured       = errors.New("provider_not_configured")
)
