package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	inventoryService = "inventory-service"

	useCaseSetStock  = "inventory.set_stock"
	useCaseAvailable = "inventory.available"
	useCaseReserve   = "inventory.reserve"
	useCaseRelease   = "inventory.release"
	useCaseSeedAll   = "inventory.seed_all"
)

var ErrCatalog = errors.New("inventory: catalog failure")

// Service fronts the stock ledger for administrators and direct reservation callers.
// The ledger mirrors the catalog lazily: a product is seeded the first time it is touched.
type Service struct {
	ledger    dominv.Ledger
	catalog   dominv.Catalog
	writer    dominv.CatalogWriter
	publisher domoutbox.Publisher
	obs       *application.Instrument
}

func NewService(
	ledger dominv.Ledger,
	catalog dominv.Catalog,
	writer dominv.CatalogWriter,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		ledger:    ledger,
		catalog:   catalog,
		writer:    writer,
		publisher: publisher,
		obs:       application.NewInstrument(tel, inventoryService),
	}
}

// EnsureSeeded mirrors the catalog's on-hand quantity into the ledger when the product has no entry yet.
// Unknown products are left unseeded so reads keep reporting zero.
func (s *Service) EnsureSeeded(ctx context.Context, productID string) error {
	if s.ledger.HasEntry(productID) || s.catalog == nil {
		return nil
	}
	onHand, err := s.catalog.OnHand(ctx, productID)
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	s.ledger.SeedIfAbsent(productID, onHand)
	return nil
}

// SeedAll seeds every catalog product that has no ledger entry and returns how many products were listed.
func (s *Service) SeedAll(ctx context.Context) (_ int, err error) {
	ctx, call := s.obs.Begin(ctx, useCaseSeedAll, "SeedAll")
	defer func() { call.End(err) }()

	if s.catalog == nil {
		return 0, nil
	}
	levels, err := s.catalog.List(ctx)
	if err != nil {
		call.Fail("CATALOG_LIST_FAILED")
		return 0, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	for _, lvl := range levels {
		s.ledger.SeedIfAbsent(lvl.ProductID, lvl.OnHand)
	}
	call.Field("products", len(levels))
	call.Span().SetAttributes(attribute.Int("inventory.products", len(levels)))
	return len(levels), nil
}
