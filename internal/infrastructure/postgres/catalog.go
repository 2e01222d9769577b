package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
)

var (
	_ dominv.Catalog       = (*Catalog)(nil)
	_ dominv.CatalogWriter = (*Catalog)(nil)
	_ dominv.Committer     = (*Catalog)(nil)
)

const (
	productsTable = "products"

	schema = `CREATE TABLE IF NOT EXISTS products (
	id    TEXT PRIMARY KEY,
	stock INTEGER NOT NULL CHECK (stock >= 0)
)`
)

// Catalog reads and decrements authoritative stock held in a Postgres products table.
type Catalog struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// OpenOptions tunes the connection retry loop.
type OpenOptions struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// Open connects with the lib/pq driver, retrying the initial ping with exponential backoff,
// and makes sure the products table exists.
func Open(ctx context.Context, dsn string, opts OpenOptions) (*sql.DB, error) {
	const op = "postgres.Open"

	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(opts.BaseDelay))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ensure schema: %w", op, err)
	}
	return db, nil
}

func (c *Catalog) OnHand(ctx context.Context, productID string) (int, error) {
	const op = "postgres.Catalog.OnHand"

	query, args, err := c.sq.Select("stock").From(productsTable).Where(squirrel.Eq{"id": productID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}

	var stock int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, dominv.ErrNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return stock, nil
}

func (c *Catalog) List(ctx context.Context) ([]dominv.StockLevel, error) {
	const op = "postgres.Catalog.List"

	query, args, err := c.sq.Select("id", "stock").From(productsTable).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var levels []dominv.StockLevel
	for rows.Next() {
		var lvl dominv.StockLevel
		if err := rows.Scan(&lvl.ProductID, &lvl.OnHand); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		levels = append(levels, lvl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return levels, nil
}

// SetOnHand upserts a product's stock.
func (c *Catalog) SetOnHand(ctx context.Context, productID string, qty int) error {
	const op = "postgres.Catalog.SetOnHand"
	if qty < 0 {
		return dominv.ErrInvalidQuantity
	}

	query, args, err := c.sq.Insert(productsTable).
		Columns("id", "stock").
		Values(productID, qty).
		Suffix("ON CONFLICT (id) DO UPDATE SET stock = EXCLUDED.stock").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Commit decrements every line in one transaction. Each update is guarded by stock >= qty,
// so a line that cannot be covered rolls the whole commit back.
func (c *Catalog) Commit(ctx context.Context, lines []dominv.Line) error {
	const op = "postgres.Catalog.Commit"

	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range merged {
		query, args, err := c.sq.Update(productsTable).
			Set("stock", squirrel.Expr("stock - ?", l.Quantity)).
			Where(squirrel.Eq{"id": l.ProductID}).
			Where(squirrel.GtOrEq{"stock": l.Quantity}).
			ToSql()
		if err != nil {
			return fmt.Errorf("%s: build update: %w", op, err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: update %s: %w", op, l.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: rows affected: %w", op, err)
		}
		if n == 0 {
			if err := c.classifyMiss(ctx, tx, l.ProductID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// classifyMiss tells a missing product apart from a stock shortfall.
func (c *Catalog) classifyMiss(ctx context.Context, tx *sql.Tx, productID string) error {
	query, args, err := c.sq.Select("1").From(productsTable).Where(squirrel.Eq{"id": productID}).ToSql()
	if err != nil {
		return fmt.Errorf("postgres.Catalog.Commit: build lookup: %w", err)
	}
	var one int
	switch err := tx.QueryRowContext(ctx, query, args...).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", dominv.ErrNotFound, productID)
	case err != nil:
		return fmt.Errorf("postgres.Catalog.Commit: lookup %s: %w", productID, err)
	default:
		return fmt.Errorf("%w: %s", dominv.ErrInsufficientStock, productID)
	}
}

// mergeLines sums duplicate products and orders them by id so concurrent commits lock rows in the same order.
func mergeLines(lines []dominv.Line) ([]dominv.Line, error) {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, dominv.ErrInvalidQuantity
		}
		totals[l.ProductID] += l.Quantity
	}
	merged := make([]dominv.Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, dominv.Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
