package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tradedocs/internal/repository"
)

// ErrRateUnavailable means no rate is cached and no upstream could supply one.
var ErrRateUnavailable = errors.New("currency rate unavailable")

// RateProvider returns how many AED one unit of currency is worth.
type RateProvider interface {
	RateToAED(ctx context.Context, currency string) (decimal.Decimal, error)
}

// StaticRates is a fixed rate table.
type StaticRates map[string]decimal.Decimal

func (s StaticRates) RateToAED(_ context.Context, currency string) (decimal.Decimal, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "AED" {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := s[cur]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("%s: %w", cur, ErrRateUnavailable)
}

// ParseStaticRates reads a "CUR=rate,CUR=rate" list.
func ParseStaticRates(s string) (StaticRates, error) {
	out := StaticRates{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cur, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("rate %q: expected CUR=rate", part)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", part, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %q: must be positive", part)
		}
		out[strings.ToUpper(strings.TrimSpace(cur))] = rate
	}
	return out, nil
}

// CachedRates reads the currency_rates table first and falls back to an
// upstream provider, caching what it returns.
type CachedRates struct {
	cache    repository.CurrencyRateRepository
	upstream RateProvider
	logger   *slog.Logger
}

func NewCachedRates(cache repository.CurrencyRateRepository, upstream RateProvider, logger *slog.Logger) *CachedRates {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRates{cache: cache, upstream: upstream, logger: logger}
}

func (c *CachedRates) RateToAED(ctx context.Context, currency string) (decimal.Decimal, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		return decimal.Zero, fmt.Errorf("empty currency: %w", ErrRateUnavailable)
	}
	cached, err := c.cache.Get(ctx, cur)
	if err != nil {
		c.logger.Warn("rate cache lookup failed", "currency", cur, "error", err)
	} else if cached != nil {
		return cached.RateToAED, nil
	}

	if c.upstream == nil {
		return decimal.Zero, fmt.Errorf("%s: %w", cur, ErrRateUnavailable)
	}
	rate, err := c.upstream.RateToAED(ctx, cur)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.cache.Upsert(ctx, cur, rate); err != nil {
		c.logger.Warn("rate cache write failed", "currency", cur, "error", err)
	}
	return rate, nil
}
