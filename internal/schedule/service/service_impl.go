package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/insightlabs/orrery/internal/clock"
	"github.com/insightlabs/orrery/internal/config"
	entitlementdomain "github.com/insightlabs/orrery/internal/entitlement/domain"
	"github.com/insightlabs/orrery/internal/observability/metrics"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
	scheduledomain "github.com/insightlabs/orrery/internal/schedule/domain"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	plans   *config.PlanConfigHolder
	metrics *metrics.Metrics

	provider        providerdomain.Client
	subscriptionSvc subscriptiondomain.Service
	entitlementSvc  entitlementdomain.Service
}

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Plans   *config.PlanConfigHolder
	Metrics *metrics.Metrics `optional:"true"`

	Provider        providerdomain.Client
	SubscriptionSvc subscriptiondomain.Service
	EntitlementSvc  entitlementdomain.Service
}

func NewService(p ServiceParam) scheduledomain.Service {
	return &Service{
		log:             p.Log.Named("schedule.service"),
		clock:           p.Clock,
		plans:           p.Plans,
		metrics:         p.Metrics,
		provider:        p.Provider,
		subscriptionSvc: p.SubscriptionSvc,
		entitlementSvc:  p.EntitlementSvc,
	}
}

// AttachPromoSchedule implements domain.Service.
func (s *Service) AttachPromoSchedule(ctx context.Context, accountID, subscriptionID string, periodStart time.Time) error {
	plans := s.plans.Get()

	schedule, err := s.provider.CreateScheduleFromSubscription(ctx, subscriptionID)
	if err != nil {
		// Nothing was written remotely. Let the provider redeliver the
		// checkout and try again.
		return err
	}

	phase1Start := periodStart.UTC()
	phase1End := phase1Start.Add(plans.PromoPhaseDuration())
	phases := []providerdomain.Phase{{
		Price:    plans.PromoPriceID,
		Quantity: 1,
		Start:    phase1Start,
		End:      &phase1End,
	}, {
		Price:    plans.StandardPriceID,
		Quantity: 1,
		Start:    phase1End,
	}}

	updated, err := s.provider.UpdateSchedulePhases(ctx, schedule.ID, phases)
	if err != nil {
		// The schedule exists remotely but carries the wrong phases. The
		// account keeps its live subscription at the standard price, so
		// record what we know and surface the degradation instead of
		// failing a checkout that already charged the customer.
		if recordErr := s.subscriptionSvc.RecordSchedule(ctx, accountID, &schedule.ID, true); recordErr != nil {
			s.log.Error("schedule compensation write failed",
				zap.String("account_id", accountID),
				zap.String("schedule_id", schedule.ID),
				zap.Error(recordErr),
			)
		}
		s.metrics.RecordScheduleDegraded(ctx)
		s.log.Error("promo schedule phase update failed, account degraded to standard pricing",
			zap.String("account_id", accountID),
			zap.String("subscription_id", subscriptionID),
			zap.String("schedule_id", schedule.ID),
			zap.Error(err),
		)
		return nil
	}

	if err := s.subscriptionSvc.RecordSchedule(ctx, accountID, &updated.ID, true); err != nil {
		return err
	}

	s.log.Info("promo schedule attached",
		zap.String("account_id", accountID),
		zap.String("schedule_id", updated.ID),
		zap.Time("phase1_start", phase1Start),
		zap.Time("phase1_end", phase1End),
	)
	return nil
}

// HandleScheduleEvent implements domain.Service.
func (s *Service) HandleScheduleEvent(ctx context.Context, event scheduledomain.ScheduleEvent) error {
	scheduleID := strings.TrimSpace(event.ScheduleID)
	if scheduleID == "" {
		return nil
	}

	subscription, err := s.subscriptionSvc.GetByScheduleID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if subscription == nil {
		s.log.Info("schedule event for unknown schedule", zap.String("schedule_id", scheduleID))
		return nil
	}
	if subscription.PlanType != subscriptiondomain.PlanPromoIntro {
		return nil
	}

	if !event.Completed && !beyondIntroPhase(event.Phases, s.clock.Now()) {
		return nil
	}

	plans := s.plans.Get()
	standardPrice := plans.StandardPriceID
	if err := s.subscriptionSvc.SwitchPlan(ctx, subscription.AccountID, subscriptiondomain.PlanStandard, &standardPrice); err != nil {
		return err
	}

	updated, err := s.subscriptionSvc.GetByAccountID(ctx, subscription.AccountID)
	if err != nil {
		return err
	}
	if updated != nil {
		if err := s.entitlementSvc.Project(ctx, updated); err != nil {
			return err
		}
	}

	s.log.Info("promo phase rolled over to standard plan",
		zap.String("account_id", subscription.AccountID),
		zap.String("schedule_id", scheduleID),
	)
	return nil
}

// beyondIntroPhase reports whether the clock has left the first phase. The
// currently active phase decides; with no matching phase the first phase's
// end boundary does.
func beyondIntroPhase(phases []providerdomain.SchedulePhase, now time.Time) bool {
	if len(phases) == 0 {
		return false
	}
	ts := now.UTC().Unix()
	for i, phase := range phases {
		if ts < phase.StartDate {
			continue
		}
		if phase.EndDate == 0 || ts < phase.EndDate {
			return i > 0
		}
	}
	first := phases[0]
	return first.EndDate > 0 && ts >= first.EndDate
}
