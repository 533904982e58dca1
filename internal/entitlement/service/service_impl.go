package service

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightlabs/orrery/internal/clock"
	"github.com/insightlabs/orrery/internal/config"
	entitlementdomain "github.com/insightlabs/orrery/internal/entitlement/domain"
	"github.com/insightlabs/orrery/internal/observability/metrics"
	subscriptiondomain "github.com/insightlabs/orrery/internal/subscription/domain"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	plans   *config.PlanConfigHolder
	metrics *metrics.Metrics
	repo    entitlementdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Plans   *config.PlanConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
	Repo    entitlementdomain.Repository
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("entitlement.service"),
		clock:   p.Clock,
		plans:   p.Plans,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

// Project implements domain.Service. The write only touches the columns the
// subscription owns, so credit counters survive any redelivery ordering.
func (s *Service) Project(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	if subscription == nil || strings.TrimSpace(subscription.AccountID) == "" {
		return entitlementdomain.ErrInvalidUpdate
	}

	status := deriveStatus(subscription)
	planType := subscription.PlanType
	cancelAtPeriodEnd := subscription.CancelAtPeriodEnd

	update := entitlementdomain.Update{
		Status:            &status,
		PlanType:          &planType,
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
	}
	if subscription.PeriodEnd != nil {
		expiresAt := *subscription.PeriodEnd
		update.ExpiresAt = &expiresAt
	} else {
		update.ClearExpiresAt = true
	}

	return s.repo.Apply(ctx, s.db, subscription.AccountID, update)
}

// GrantCredits implements domain.Service.
func (s *Service) GrantCredits(ctx context.Context, accountID, productType string) (int64, error) {
	accountID = strings.TrimSpace(accountID)
	productType = strings.TrimSpace(productType)
	if accountID == "" {
		return 0, entitlementdomain.ErrInvalidUpdate
	}

	credits := s.plans.Get().CreditGrant(productType)
	if credits <= 0 {
		return 0, entitlementdomain.ErrInvalidProductType
	}

	grantedAt := s.clock.Now().UTC()
	err := s.repo.Apply(ctx, s.db, accountID, entitlementdomain.Update{
		AddCredits:      int64(credits),
		CreditGrantedAt: &grantedAt,
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordCreditGrant(ctx, productType, credits)
	s.log.Info("credits granted",
		zap.String("account_id", accountID),
		zap.String("product_type", productType),
		zap.Int("credits", credits),
	)
	return int64(credits), nil
}

// GetByAccountID implements domain.Service.
func (s *Service) GetByAccountID(ctx context.Context, accountID string) (*entitlementdomain.Entitlement, error) {
	return s.repo.FindByAccountID(ctx, s.db, strings.TrimSpace(accountID))
}

// deriveStatus keeps past_due accounts on pro so a transient card failure
// does not drop access mid-grace.
func deriveStatus(subscription *subscriptiondomain.Subscription) entitlementdomain.Status {
	if subscription.PlanType == subscriptiondomain.PlanLifetime {
		return entitlementdomain.StatusPro
	}
	switch subscription.Status {
	case subscriptiondomain.StatusActive,
		subscriptiondomain.StatusTrialing,
		subscriptiondomain.StatusPastDue:
		return entitlementdomain.StatusPro
	default:
		return entitlementdomain.StatusExpired
	}
}
