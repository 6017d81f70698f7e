package accounting

import (
	"github.com/shopspring/decimal"

	"taxScope/internal/model"
	"taxScope/internal/price"
)

// ActionKind is the direction of a ledger action.
type ActionKind string

const (
	ActionSpend       ActionKind = "spend"
	ActionAcquisition ActionKind = "acquisition"
)

// Action is one spend or acquisition handed to the cost-basis ledger.
type Action struct {
	Kind                   ActionKind
	TimestampMS            int64
	Location               model.Location
	Asset                  string
	Amount                 decimal.Decimal
	Price                  decimal.Decimal
	Taxable                bool
	CountEntireAmountSpend bool
	CountCostBasisPnL      bool
	Notes                  string
	Extra                  map[string]string
}

// Value is amount times price.
func (a Action) Value() decimal.Decimal {
	return a.Amount.Mul(a.Price)
}

// Pot is the cost-basis ledger.
type Pot interface {
	AddSpend(action Action)
	AddAcquisition(action Action)
}

// PriceOracle prices assets in the profit currency.
type PriceOracle interface {
	Price(asset string, timestampMS int64) (decimal.Decimal, bool)
	SwapPrices(q price.SwapQuery) (price.SwapPrices, bool)
}

// MissingPrice is an actionable item for the user: an action was skipped
// because no price was known.
type MissingPrice struct {
	Asset       string `json:"asset"`
	TimestampMS int64  `json:"timestamp"`
	TxHash      string `json:"tx_hash,omitempty"`
	Notes       string `json:"notes,omitempty"`
}
