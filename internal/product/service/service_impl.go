package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingscheduledomain "github.com/smallbiznis/recurring/internal/billingschedule/domain"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/price"
	"github.com/smallbiznis/recurring/internal/product/domain"
	"github.com/smallbiznis/recurring/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	ScheduleRepo billingscheduledomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	scheduleRepo billingscheduledomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("product.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		scheduleRepo: p.ScheduleRepo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Variation, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return nil, domain.ErrInvalidSKU
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	unitPrice, err := price.New(req.UnitPrice, req.CurrencyCode)
	if err != nil || unitPrice.Number.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}

	var scheduleID *snowflake.ID
	if req.BillingScheduleID != nil && strings.TrimSpace(*req.BillingScheduleID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.BillingScheduleID))
		if err != nil {
			return nil, domain.ErrInvalidBillingSchedule
		}
		schedule, err := s.scheduleRepo.FindByID(ctx, s.db, parsed)
		if err != nil {
			return nil, err
		}
		if schedule == nil {
			return nil, domain.ErrInvalidBillingSchedule
		}
		scheduleID = &parsed
	}

	var subscriptionType *string
	if req.SubscriptionType != nil {
		if value := strings.TrimSpace(*req.SubscriptionType); value != "" {
			subscriptionType = &value
		}
	}

	now := s.clock.Now()
	variation := &domain.Variation{
		ID:                s.genID.Generate(),
		SKU:               sku,
		Title:             title,
		UnitPrice:         unitPrice.Number,
		CurrencyCode:      unitPrice.CurrencyCode,
		SubscriptionType:  subscriptionType,
		BillingScheduleID: scheduleID,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, variation); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSKU
		}
		return nil, err
	}
	return variation, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Variation, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	variation, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if variation == nil {
		return nil, domain.ErrNotFound
	}
	return variation, nil
}
