package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

type CurrencyRateRepository interface {
	// Get returns the cached rate, or nil when the currency is not cached.
	Get(ctx context.Context, currency string) (*entity.CurrencyRate, error)
	Upsert(ctx context.Context, currency string, rate decimal.Decimal) error
}

type currencyRateRepo struct {
	db     *Client
	logger *slog.Logger
}

func NewCurrencyRateRepository(c *Client, logger *slog.Logger) CurrencyRateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &currencyRateRepo{db: c, logger: logger}
}

func (r *currencyRateRepo) Get(ctx context.Context, currency string) (*entity.CurrencyRate, error) {
	q, args := r.db.builder().Select("currency", "rate_to_aed", "updated_at").
		From(entsql.Table("currency_rates")).
		Where(entsql.EQ("currency", strings.ToUpper(currency))).
		Query()
	var out *entity.CurrencyRate
	err := r.db.query(ctx, q, args, func(rs rowScanner) error {
		var cr entity.CurrencyRate
		if err := rs.Scan(&cr.Currency, &cr.RateToAED, &cr.UpdatedAt); err != nil {
			return fmt.Errorf("scan currency rate: %w", err)
		}
		out = &cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *currencyRateRepo) Upsert(ctx context.Context, currency string, rate decimal.Decimal) error {
	q, args := r.db.builder().Insert("currency_rates").
		Columns("currency", "rate_to_aed", "updated_at").
		Values(strings.ToUpper(currency), rate.String(), time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("currency"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to cache currency rate", "currency", currency, "error", err)
		return err
	}
	return nil
}
