package costbasis

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
)

// Lot is an acquired quantity of an asset still held.
type Lot struct {
	Asset       string
	TimestampMS int64
	Amount      decimal.Decimal
	Price       decimal.Decimal
}

// ProcessedEvent is one action as booked, with its realised PnL.
type ProcessedEvent struct {
	Action    accounting.Action `json:"-"`
	Kind      string            `json:"kind"`
	Asset     string            `json:"asset"`
	Amount    string            `json:"amount"`
	Price     string            `json:"price"`
	CostBasis string            `json:"cost_basis,omitempty"`
	PnL       string            `json:"pnl"`
	Taxable   bool              `json:"taxable"`
	TxHash    string            `json:"tx_hash,omitempty"`
}

// MissingAcquisition records a spend that found fewer lots than it needed.
// The uncovered amount is booked with zero cost basis.
type MissingAcquisition struct {
	Asset       string          `json:"asset"`
	TimestampMS int64           `json:"timestamp"`
	Missing     decimal.Decimal `json:"missing_amount"`
}

// Totals are the realised PnL of a report run.
type Totals struct {
	Taxable decimal.Decimal `json:"taxable"`
	Free    decimal.Decimal `json:"free"`
}

// Pot is a FIFO cost-basis ledger.
type Pot struct {
	logger *zap.Logger

	mu        sync.Mutex
	lots      map[string][]*Lot
	totals    Totals
	processed []ProcessedEvent
	missing   []MissingAcquisition
}

func NewPot(logger *zap.Logger) *Pot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pot{
		logger: logger,
		lots:   make(map[string][]*Lot),
		totals: Totals{Taxable: decimal.Zero, Free: decimal.Zero},
	}
}

// AddAcquisition opens a lot. A taxable acquisition is income worth its value.
func (p *Pot) AddAcquisition(action accounting.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lots[action.Asset] = append(p.lots[action.Asset], &Lot{
		Asset:       action.Asset,
		TimestampMS: action.TimestampMS,
		Amount:      action.Amount,
		Price:       action.Price,
	})
	pnl := decimal.Zero
	if action.Taxable {
		pnl = action.Value()
	}
	p.book(action, decimal.Zero, pnl)
}

// AddSpend consumes lots oldest first and realises the difference between the
// spend value and the consumed cost basis.
func (p *Pot) AddSpend(action accounting.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()

	costBasis, uncovered := p.consume(action.Asset, action.Amount)
	if uncovered.IsPositive() {
		p.missing = append(p.missing, MissingAcquisition{
			Asset:       action.Asset,
			TimestampMS: action.TimestampMS,
			Missing:     uncovered,
		})
		p.logger.Debug("spend exceeds known acquisitions",
			zap.String("asset", action.Asset),
			zap.String("missing", uncovered.String()),
		)
	}

	pnl := decimal.Zero
	switch {
	case action.CountEntireAmountSpend:
		pnl = action.Value().Neg()
	case action.CountCostBasisPnL:
		pnl = action.Value().Sub(costBasis)
	}
	p.book(action, costBasis, pnl)
}

func (p *Pot) consume(asset string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	costBasis := decimal.Zero
	remaining := amount
	lots := p.lots[asset]
	for len(lots) > 0 && remaining.IsPositive() {
		lot := lots[0]
		used := decimal.Min(lot.Amount, remaining)
		costBasis = costBasis.Add(used.Mul(lot.Price))
		lot.Amount = lot.Amount.Sub(used)
		remaining = remaining.Sub(used)
		if !lot.Amount.IsPositive() {
			lots = lots[1:]
		}
	}
	p.lots[asset] = lots
	return costBasis, remaining
}

func (p *Pot) book(action accounting.Action, costBasis, pnl decimal.Decimal) {
	if action.Taxable {
		p.totals.Taxable = p.totals.Taxable.Add(pnl)
	} else {
		p.totals.Free = p.totals.Free.Add(pnl)
	}
	event := ProcessedEvent{
		Action:  action,
		Kind:    string(action.Kind),
		Asset:   action.Asset,
		Amount:  action.Amount.String(),
		Price:   action.Price.String(),
		PnL:     pnl.String(),
		Taxable: action.Taxable,
		TxHash:  action.Extra["tx_hash"],
	}
	if action.Kind == accounting.ActionSpend {
		event.CostBasis = costBasis.String()
	}
	p.processed = append(p.processed, event)
}

func (p *Pot) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

func (p *Pot) Processed() []ProcessedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProcessedEvent, len(p.processed))
	copy(out, p.processed)
	return out
}

func (p *Pot) MissingAcquisitions() []MissingAcquisition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MissingAcquisition, len(p.missing))
	copy(out, p.missing)
	return out
}

// Holdings returns the amount of asset still held in open lots.
func (p *Pot) Holdings(asset string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := decimal.Zero
	for _, lot := range p.lots[asset] {
		total = total.Add(lot.Amount)
	}
	return total
}
