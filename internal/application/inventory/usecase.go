package inventory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const publishTimeout = 300 * time.Millisecond

// SetStock overwrites a product's stock in the catalog and resets the ledger to match.
// Units already sitting in carts are not reconciled.
func (s *Service) SetStock(ctx context.Context, productID string, qty int) (err error) {
	ctx, call := s.obs.Begin(ctx, useCaseSetStock, "SetStock",
		attribute.String("inventory.product_id", productID),
		attribute.Int("inventory.quantity", qty),
	)
	defer func() { call.End(err) }()

	if productID == "" {
		call.Fail("PRODUCT_ID_REQUIRED")
		return application.NewValidation("product id is required")
	}
	if qty < 0 {
		call.Fail("QUANTITY_INVALID")
		return fmt.Errorf("%w: %w", application.ErrValidation, dominv.ErrInvalidQuantity)
	}

	if s.writer != nil {
		if err := s.writer.SetOnHand(ctx, productID, qty); err != nil {
			call.Fail("CATALOG_WRITE_FAILED")
			return fmt.Errorf("%w: %w", ErrCatalog, err)
		}
	}
	s.ledger.SetStock(productID, qty)

	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if perr := s.publisher.Publish(pubCtx, dominv.NewStockAdjustedEvent(productID, qty)); perr != nil {
			call.Status = "EVENT_PUBLISH_FAILED"
			call.Span().RecordError(perr)
			call.Logger().Warn("event_publish_failed",
				observability.F("event", dominv.StockAdjustedEvent{}.EventName()),
				observability.F("error", perr.Error()),
			)
		}
	}
	return nil
}

// Available reports claimable units, seeding from the catalog on first access.
func (s *Service) Available(ctx context.Context, productID string) (_ int, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseAvailable, "Available",
		attribute.String("inventory.product_id", productID),
	)
	defer func() { call.End(err) }()

	if err := s.EnsureSeeded(ctx, productID); err != nil {
		call.Fail("SEED_FAILED")
		return 0, err
	}
	available := s.ledger.Available(productID)
	call.Field("available", available)
	return available, nil
}

// ReserveOne claims one unit outside of any cart. A false result means out of stock.
func (s *Service) ReserveOne(ctx context.Context, productID string) (_ bool, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseReserve, "ReserveOne",
		attribute.String("inventory.product_id", productID),
	)
	defer func() { call.End(err) }()

	if err := s.EnsureSeeded(ctx, productID); err != nil {
		call.Fail("SEED_FAILED")
		return false, err
	}
	if !s.ledger.ReserveOne(productID) {
		call.Status = "OUT_OF_STOCK"
		return false, nil
	}
	return true, nil
}

// ReleaseOne hands one unit back. Releasing a product the ledger has never seen is a no-op.
func (s *Service) ReleaseOne(ctx context.Context, productID string) {
	_, call := s.obs.Begin(ctx, useCaseRelease, "ReleaseOne",
		attribute.String("inventory.product_id", productID),
	)
	s.ledger.ReleaseOne(productID)
	call.End(nil)
}
