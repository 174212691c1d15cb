package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditLogEntry is an append-only record of a notable state transition.
type AuditLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CurrencyRate caches the AED conversion rate for a currency.
type CurrencyRate struct {
	Currency  string          `json:"currency"`
	RateToAED decimal.Decimal `json:"rate_to_aed"`
	UpdatedAt time.Time       `json:"updated_at"`
}
