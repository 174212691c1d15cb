package documents

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tradedocs/internal/entity"
)

var (
	dutyElectrical = decimal.RequireFromString("0.05")
	dutyDefault    = decimal.RequireFromString("0.10")
)

// Duties is the customs estimate for a delivery order.
type Duties struct {
	ValueInAED decimal.Decimal
	Duties     decimal.Decimal
	Percentage decimal.Decimal
}

// DutyRate is 5% for HS chapter 85 (electrical machinery) and 10% otherwise.
func DutyRate(hsCode string) decimal.Decimal {
	if strings.HasPrefix(strings.TrimSpace(hsCode), "85") {
		return dutyElectrical
	}
	return dutyDefault
}

// ComputeDuties converts value to AED with rate and applies the duty rate of
// hsCode. Amounts are rounded half to even at two decimals.
func ComputeDuties(value string, rate decimal.Decimal, hsCode string) (Duties, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Duties{}, fmt.Errorf("invalid value %q: %w", value, err)
	}
	pct := DutyRate(hsCode)
	inAED := v.Mul(rate).RoundBank(2)
	return Duties{
		ValueInAED: inAED,
		Duties:     inAED.Mul(pct).RoundBank(2),
		Percentage: pct,
	}, nil
}

// Apply writes the amounts into the metadata fields.
func (d Duties) Apply(m *entity.Metadata) {
	m.Set("value_in_aed", d.ValueInAED.StringFixed(2))
	m.Set("duties", d.Duties.StringFixed(2))
	m.Set("duty_percentage", d.Percentage.StringFixed(2))
}
