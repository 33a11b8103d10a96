package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/order/domain"
	"github.com/smallbiznis/recurring/internal/price"
	productdomain "github.com/smallbiznis/recurring/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	ProductRepo productdomain.Repository
	Rounder     price.Rounder
	Hooks       domain.TransitionHooks `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	productRepo productdomain.Repository
	rounder     price.Rounder
	hooks       domain.TransitionHooks
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		productRepo: p.ProductRepo,
		rounder:     p.Rounder,
		hooks:       p.Hooks,
	}
}

// Create stores a draft initial order priced from the purchased variations.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Order, error) {
	customerID, err := parseID(req.CustomerID, domain.ErrInvalidCustomer)
	if err != nil {
		return nil, err
	}
	storeID, err := parseID(req.StoreID, domain.ErrInvalidStore)
	if err != nil {
		return nil, err
	}
	var paymentMethodID *snowflake.ID
	if req.PaymentMethodID != nil && strings.TrimSpace(*req.PaymentMethodID) != "" {
		id, err := parseID(*req.PaymentMethodID, domain.ErrInvalidPaymentMethod)
		if err != nil {
			return nil, err
		}
		paymentMethodID = &id
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:              s.genID.Generate(),
		Type:            domain.OrderTypeInitial,
		State:           domain.StateDraft,
		CustomerID:      customerID,
		StoreID:         storeID,
		PaymentMethodID: paymentMethodID,
		TotalAmount:     decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := make([]domain.Item, 0, len(req.Items))
		var total price.Price
		for i, itemReq := range req.Items {
			variationID, err := parseID(itemReq.VariationID, domain.ErrInvalidItems)
			if err != nil {
				return err
			}
			quantity, err := decimal.NewFromString(strings.TrimSpace(itemReq.Quantity))
			if err != nil || !quantity.IsPositive() {
				return domain.ErrInvalidQuantity
			}
			variation, err := s.productRepo.FindByID(ctx, tx, variationID)
			if err != nil {
				return err
			}
			if variation == nil {
				return domain.ErrVariationNotFound
			}

			unit := price.Price{Number: variation.UnitPrice, CurrencyCode: variation.CurrencyCode}
			lineTotal, err := s.rounder.Round(unit.Multiply(quantity))
			if err != nil {
				return err
			}
			if i == 0 {
				total = price.Zero(unit.CurrencyCode)
			}
			if total, err = total.Add(lineTotal); err != nil {
				return domain.ErrCurrencyMismatch
			}

			purchasedEntityID := variation.ID
			items = append(items, domain.Item{
				ID:                s.genID.Generate(),
				OrderID:           order.ID,
				Type:              domain.ItemTypePurchasedEntity,
				Position:          i,
				Title:             variation.Title,
				PurchasedEntityID: &purchasedEntityID,
				Quantity:          quantity,
				UnitPrice:         unit.Number,
				TotalPrice:        lineTotal.Number,
				CurrencyCode:      unit.CurrencyCode,
				CreatedAt:         now,
				UpdatedAt:         now,
			})
		}

		order.TotalAmount = total.Number
		order.CurrencyCode = total.CurrencyCode
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}
		order.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Items, err = s.repo.FindItems(ctx, s.db, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// Place moves a draft order to placed. Subscriptions are created in the same transaction.
func (s *Service) Place(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.StatePlaced)
}

// Cancel cancels a draft or placed order along with the subscriptions it started.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.StateCanceled)
}

func (s *Service) transition(ctx context.Context, id string, target domain.State) (*domain.Order, error) {
	orderID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.State == target {
			updated = order
			return nil
		}
		if !isTransitionAllowed(order.State, target) {
			return domain.ErrInvalidState
		}

		if order.Items, err = s.repo.FindItems(ctx, tx, order.ID); err != nil {
			return err
		}

		if s.hooks != nil {
			switch target {
			case domain.StatePlaced:
				err = s.hooks.OnPlace(ctx, tx, order)
			case domain.StateCanceled:
				err = s.hooks.OnCancel(ctx, tx, order)
			}
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		switch target {
		case domain.StatePlaced:
			order.PlacedAt = &now
		case domain.StateCanceled:
			order.CanceledAt = &now
		}
		order.State = target
		order.UpdatedAt = now
		if err := s.repo.UpdateState(ctx, tx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order.transition",
		zap.String("order_id", updated.ID.String()),
		zap.String("order_type", string(updated.Type)),
		zap.String("state", string(updated.State)),
	)
	return updated, nil
}

func isTransitionAllowed(current, target domain.State) bool {
	switch current {
	case domain.StateDraft:
		return target == domain.StatePlaced || target == domain.StateCanceled || target == domain.StateCompleted
	case domain.StatePlaced:
		return target == domain.StateCompleted || target == domain.StateCanceled
	default:
		return false
	}
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
