package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/insightlabs/orrery/internal/clock"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Project implements domain.Service. The same event applied twice lands on
// the same row state.
func (s *Service) Project(ctx context.Context, req subscriptiondomain.ProjectRequest) (*subscriptiondomain.Subscription, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if _, ok := subscriptiondomain.ParsePlanType(string(req.PlanType)); !ok {
		return nil, subscriptiondomain.ErrInvalidPlanType
	}

	now := s.clock.Now().UTC()
	subscription := &subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		PlanType:    req.PlanType,
		Status:      subscriptiondomain.StatusActive,
		PeriodStart: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Remote != nil {
		remote := req.Remote
		subscription.ExternalCustomerID = strings.TrimSpace(remote.Customer)
		if id := strings.TrimSpace(remote.ID); id != "" {
			subscription.ExternalSubscriptionID = &id
		}
		if item := remote.FirstItem(); item != nil && strings.TrimSpace(item.Price.ID) != "" {
			priceID := strings.TrimSpace(item.Price.ID)
			subscription.ExternalPriceID = &priceID
		}
		if scheduleID := strings.TrimSpace(remote.Schedule); scheduleID != "" {
			subscription.ExternalScheduleID = &scheduleID
		}
		subscription.Status = subscriptiondomain.MapProviderStatus(remote.Status)
		subscription.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		subscription.PeriodStart = resolvePeriodStart(remote, now)
		subscription.PeriodEnd = resolvePeriodEnd(remote)
		if len(remote.Metadata) > 0 {
			metadata := datatypes.JSONMap{}
			for key, value := range remote.Metadata {
				metadata[key] = value
			}
			subscription.Metadata = metadata
		}
	}
	if req.ForceStatus != "" {
		subscription.Status = req.ForceStatus
	}

	// A lifetime row never expires; anything the remote object carried for
	// the boundary is discarded before validation.
	if req.PlanType == subscriptiondomain.PlanLifetime {
		subscription.PeriodEnd = nil
	}
	if err := subscription.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return s.repo.FindByAccountID(ctx, s.db, accountID)
}

// GetByAccountID implements domain.Service.
func (s *Service) GetByAccountID(ctx context.Context, accountID string) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByAccountID(ctx, s.db, strings.TrimSpace(accountID))
}

// GetByScheduleID implements domain.Service.
func (s *Service) GetByScheduleID(ctx context.Context, scheduleID string) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByScheduleID(ctx, s.db, strings.TrimSpace(scheduleID))
}

// GetByExternalSubscriptionID implements domain.Service.
func (s *Service) GetByExternalSubscriptionID(ctx context.Context, externalID string) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByExternalSubscriptionID(ctx, s.db, strings.TrimSpace(externalID))
}

// RecordSchedule implements domain.Service.
func (s *Service) RecordSchedule(ctx context.Context, accountID string, scheduleID *string, promoUsed bool) error {
	return s.repo.SetSchedule(ctx, s.db, strings.TrimSpace(accountID), scheduleID, promoUsed)
}

// SwitchPlan implements domain.Service.
func (s *Service) SwitchPlan(ctx context.Context, accountID string, planType subscriptiondomain.PlanType, priceID *string) error {
	if _, ok := subscriptiondomain.ParsePlanType(string(planType)); !ok {
		return subscriptiondomain.ErrInvalidPlanType
	}
	return s.repo.SetPlanType(ctx, s.db, strings.TrimSpace(accountID), planType, priceID)
}

// resolvePeriodStart walks the provider's inconsistent period placements:
// the subscription object, then the first billed item, then the start date,
// then the current time.
func resolvePeriodStart(remote *providerdomain.Subscription, now time.Time) time.Time {
	if remote.CurrentPeriodStart > 0 {
		return time.Unix(remote.CurrentPeriodStart, 0).UTC()
	}
	if item := remote.FirstItem(); item != nil && item.CurrentPeriodStart > 0 {
		return time.Unix(item.CurrentPeriodStart, 0).UTC()
	}
	if remote.StartDate > 0 {
		return time.Unix(remote.StartDate, 0).UTC()
	}
	return now
}

func resolvePeriodEnd(remote *providerdomain.Subscription) *time.Time {
	if remote.CurrentPeriodEnd > 0 {
		end := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
		return &end
	}
	if item := remote.FirstItem(); item != nil && item.CurrentPeriodEnd > 0 {
		end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		return &end
	}
	return nil
}
