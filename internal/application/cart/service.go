package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	cartService = "cart-service"

	useCaseAdd    = "cart.add"
	useCaseRemove = "cart.remove"
	useCaseView   = "cart.view"
	useCaseQty    = "cart.quantity"
	useCaseClear  = "cart.clear"
	useCaseTouch  = "cart.touch"
)

// Seeder makes sure the ledger knows about a product before a shopper tries to reserve it.
type Seeder interface {
	EnsureSeeded(ctx context.Context, productID string) error
}

// Service exposes the cart store to shoppers. Bulk operations apply one unit at a time
// and stop at the first unit that cannot be applied.
type Service struct {
	store    domcart.Store
	seeder   Seeder
	validate *validator.Validate
	obs      *application.Instrument
}

func NewService(store domcart.Store, seeder Seeder, tel observability.Observability) *Service {
	return &Service{
		store:    store,
		seeder:   seeder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		obs:      application.NewInstrument(tel, cartService),
	}
}

type AddItemsInput struct {
	SessionID string `validate:"required"`
	ProductID string `validate:"required"`
	Quantity  int    `validate:"gte=1"`
}

type RemoveItemsInput = AddItemsInput

// BulkResult reports how many of the requested units were applied and the resulting cart quantity.
type BulkResult struct {
	Requested int `json:"requested"`
	Applied   int `json:"applied"`
	Quantity  int `json:"quantity"`
}

// AddItems reserves up to Quantity units. A shortfall is reported through Applied, not as an error.
func (s *Service) AddItems(ctx context.Context, in AddItemsInput) (_ *BulkResult, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseAdd, "AddItems",
		attribute.String("cart.product_id", in.ProductID),
		attribute.Int("cart.requested", in.Quantity),
	)
	defer func() { call.End(err) }()

	if err := s.validateInput(in); err != nil {
		call.Fail("INPUT_INVALID")
		return nil, err
	}
	if s.seeder != nil {
		if err := s.seeder.EnsureSeeded(ctx, in.ProductID); err != nil {
			call.Fail("SEED_FAILED")
			return nil, err
		}
	}

	applied := 0
	for applied < in.Quantity && s.store.AddOne(in.SessionID, in.ProductID) {
		applied++
	}
	if applied < in.Quantity {
		call.Status = "PARTIAL"
	}

	res := &BulkResult{
		Requested: in.Quantity,
		Applied:   applied,
		Quantity:  s.store.QuantityOf(in.SessionID, in.ProductID),
	}
	call.Field("applied", applied)
	call.Span().SetAttributes(attribute.Int("cart.applied", applied))
	return res, nil
}

// RemoveItems returns up to Quantity units to stock.
func (s *Service) RemoveItems(ctx context.Context, in RemoveItemsInput) (_ *BulkResult, err error) {
	_, call := s.obs.Begin(ctx, useCaseRemove, "RemoveItems",
		attribute.String("cart.product_id", in.ProductID),
		attribute.Int("cart.requested", in.Quantity),
	)
	defer func() { call.End(err) }()

	if err := s.validateInput(in); err != nil {
		call.Fail("INPUT_INVALID")
		return nil, err
	}

	applied := 0
	for applied < in.Quantity && s.store.RemoveOne(in.SessionID, in.ProductID) {
		applied++
	}
	if applied < in.Quantity {
		call.Status = "PARTIAL"
	}

	call.Field("applied", applied)
	call.Span().SetAttributes(attribute.Int("cart.applied", applied))
	return &BulkResult{
		Requested: in.Quantity,
		Applied:   applied,
		Quantity:  s.store.QuantityOf(in.SessionID, in.ProductID),
	}, nil
}

func (s *Service) Cart(ctx context.Context, sessionID string) (_ domcart.Snapshot, err error) {
	_, call := s.obs.Begin(ctx, useCaseView, "Cart")
	defer func() { call.End(err) }()

	if sessionID == "" {
		call.Fail("SESSION_ID_REQUIRED")
		return nil, sessionRequired()
	}
	snap := s.store.Snapshot(sessionID)
	call.Field("units", snap.Units())
	return snap, nil
}

func (s *Service) QuantityOf(ctx context.Context, sessionID, productID string) (_ int, err error) {
	_, call := s.obs.Begin(ctx, useCaseQty, "QuantityOf",
		attribute.String("cart.product_id", productID),
	)
	defer func() { call.End(err) }()

	if sessionID == "" {
		call.Fail("SESSION_ID_REQUIRED")
		return 0, sessionRequired()
	}
	return s.store.QuantityOf(sessionID, productID), nil
}

// Clear returns every unit in the session's cart to stock and reports how many were released.
func (s *Service) Clear(ctx context.Context, sessionID string) (_ int, err error) {
	_, call := s.obs.Begin(ctx, useCaseClear, "Clear")
	defer func() { call.End(err) }()

	if sessionID == "" {
		call.Fail("SESSION_ID_REQUIRED")
		return 0, sessionRequired()
	}
	released := s.store.ReleaseAll(sessionID)
	call.Field("released", released)
	return released, nil
}

// Touch records activity so the idle sweeper leaves the cart alone.
func (s *Service) Touch(ctx context.Context, sessionID string) (err error) {
	_, call := s.obs.Begin(ctx, useCaseTouch, "Touch")
	defer func() { call.End(err) }()

	if sessionID == "" {
		call.Fail("SESSION_ID_REQUIRED")
		return sessionRequired()
	}
	s.store.Touch(sessionID)
	return nil
}

func (s *Service) validateInput(in AddItemsInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %w", application.ErrValidation, err)
	}
	switch verrs[0].Field() {
	case "SessionID":
		return sessionRequired()
	case "ProductID":
		return fmt.Errorf("%w: %w", application.ErrValidation, domcart.ErrProductRequired)
	default:
		return fmt.Errorf("%w: %w", application.ErrValidation, domcart.ErrInvalidQuantity)
	}
}

func sessionRequired() error {
	return fmt.Errorf("%w: %w", application.ErrValidation, domcart.ErrSessionRequired)
}
