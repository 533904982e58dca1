// Package service routes verified billing events to their handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/insightlabs/orrery/internal/billing/domain"
	"github.com/insightlabs/orrery/internal/billing/ingress"
	"github.com/insightlabs/orrery/internal/clock"
	"github.com/insightlabs/orrery/internal/config"
	entitlementdomain "github.com/insightlabs/orrery/internal/entitlement/domain"
	obslogger "github.com/insightlabs/orrery/internal/observability/logger"
	"github.com/insightlabs/orrery/internal/observability/metrics"
	providerdomain "github.com/insightlabs/orrery/internal/provider/domain"
	purchasedomain "github.com/insightlabs/orrery/internal/purchase/domain"
	scheduledomain "github.com/insightlabs/orrery/internal/schedule/domain"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Plans   *config.PlanConfigHolder
	Metrics *metrics.Metrics `optional:"true"`

	Ingress         *ingress.Ingress
	Provider        providerdomain.Client
	SubscriptionSvc subscriptiondomain.Service
	EntitlementSvc  entitlementdomain.Service
	ScheduleSvc     scheduledomain.Service
	PurchaseRepo    purchasedomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	plans   *config.PlanConfigHolder
	metrics *metrics.Metrics

	ingress         *ingress.Ingress
	provider        providerdomain.Client
	subscriptionSvc subscriptiondomain.Service
	entitlementSvc  entitlementdomain.Service
	scheduleSvc     scheduledomain.Service
	purchaseRepo    purchasedomain.Repository

	accountLocks *accountLocks
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("billing.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		plans:           p.Plans,
		metrics:         p.Metrics,
		ingress:         p.Ingress,
		provider:        p.Provider,
		subscriptionSvc: p.SubscriptionSvc,
		entitlementSvc:  p.EntitlementSvc,
		scheduleSvc:     p.ScheduleSvc,
		purchaseRepo:    p.PurchaseRepo,
		accountLocks:    newAccountLocks(),
	}
}

// Ingest implements domain.Service.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) error {
	if err := s.ingress.Verify(payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return billingdomain.ErrInvalidPayload
	}

	event, err := s.ingress.Decode(payload)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			var envelope struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(payload, &envelope)
			s.metrics.RecordEventIgnored(ctx, envelope.Type)
			s.log.Debug("billing event ignored", zap.String("event_type", envelope.Type))
			return nil
		}
		return err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)
	s.metrics.RecordBillingEvent(ctx, event.Type)

	switch event.Type {
	case billingdomain.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, log, event)
	case billingdomain.EventSubscriptionCreated, billingdomain.EventSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, log, event, false)
	case billingdomain.EventSubscriptionDeleted:
		return s.handleSubscriptionChanged(ctx, log, event, true)
	case billingdomain.EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, log, event)
	case billingdomain.EventScheduleUpdated, billingdomain.EventScheduleCompleted:
		return s.handleScheduleEvent(ctx, log, event)
	default:
		s.metrics.RecordEventIgnored(ctx, event.Type)
		return nil
	}
}

// dropEvent acknowledges an event the engine cannot attribute or apply.
// Redelivery would produce the same payload, so failing instead would only
// fill the provider's retry queue.
func (s *Service) dropEvent(ctx context.Context, log *zap.Logger, event *billingdomain.Event, reason string) error {
	s.metrics.RecordEventDropped(ctx, event.Type, reason)
	log.Warn("billing event dropped", zap.String("reason", reason))
	return nil
}
