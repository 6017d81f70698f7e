package price

import (
	"strings"

	"github.com/shopspring/decimal"
)

var fiatAssets = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CHF": {}, "CAD": {}, "AUD": {},
}

// IsFiat reports whether asset is a fiat currency.
func IsFiat(asset string) bool {
	_, ok := fiatAssets[strings.ToUpper(asset)]
	return ok
}

// Fee is a fee paid as part of a swap.
type Fee struct {
	Amount decimal.Decimal
	Asset  string
}

// SwapQuery describes a swap: the Out leg leaves the account, the In leg
// arrives.
type SwapQuery struct {
	TimestampMS int64
	AmountIn    decimal.Decimal
	AssetIn     string
	AmountOut   decimal.Decimal
	AssetOut    string
	Fee         *Fee
}

// SwapPrices are the per-unit prices to book the spent and acquired legs at.
type SwapPrices struct {
	Out decimal.Decimal
	In  decimal.Decimal
}

// Quotes are oracle prices for the assets of a swap. Nil means unknown.
type Quotes struct {
	Out *decimal.Decimal
	In  *decimal.Decimal
	Fee *decimal.Decimal
}

// DeriveSwapPrices computes consistent prices for both legs of a swap.
//
// A fiat leg fixes the value of the swap. Otherwise the out price is
// preferred, then the in price. When the fee is priced it is added to the
// cost of the acquired asset, or subtracted from the proceeds when the
// acquired asset is fiat.
func DeriveSwapPrices(q SwapQuery, quotes Quotes) (SwapPrices, bool) {
	if q.AmountIn.IsZero() || q.AmountOut.IsZero() {
		return SwapPrices{}, false
	}

	var useIn bool
	switch {
	case IsFiat(q.AssetOut):
		useIn = false
	case IsFiat(q.AssetIn):
		useIn = true
	case quotes.Out != nil:
		useIn = false
	case quotes.In != nil:
		useIn = true
	default:
		return SwapPrices{}, false
	}
	if (useIn && quotes.In == nil) || (!useIn && quotes.Out == nil) {
		return SwapPrices{}, false
	}

	var totalPaid decimal.Decimal
	if useIn {
		totalPaid = q.AmountIn.Mul(*quotes.In)
	} else {
		totalPaid = q.AmountOut.Mul(*quotes.Out)
	}
	feeValue := decimal.Zero
	if q.Fee != nil && quotes.Fee != nil {
		feeValue = q.Fee.Amount.Mul(*quotes.Fee)
	}

	var prices SwapPrices
	if IsFiat(q.AssetIn) {
		totalPaid = totalPaid.Sub(feeValue)
		prices.Out = totalPaid.Div(q.AmountOut)
		if useIn {
			prices.In = *quotes.In
		} else {
			prices.In = q.AmountOut.Mul(*quotes.Out).Div(q.AmountIn)
		}
		return prices, true
	}

	totalPaid = totalPaid.Add(feeValue)
	prices.In = totalPaid.Div(q.AmountIn)
	if useIn {
		prices.Out = q.AmountIn.Mul(*quotes.In).Div(q.AmountOut)
	} else {
		prices.Out = *quotes.Out
	}
	return prices, true
}
