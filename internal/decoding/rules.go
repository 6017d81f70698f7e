package decoding

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"taxScope/internal/model"
)

// DecodingOutput is what a decoding rule hands back to the engine.
type DecodingOutput struct {
	// Events are new events to append. Claimed existing events are mutated in
	// place and need not be returned.
	Events              []*model.HistoryEvent
	ActionItems         []model.ActionItem
	MatchedCounterparty string
	ProcessSwaps        bool
}

// NoOutput is returned by rules that do not apply to a log.
var NoOutput = DecodingOutput{}

// Empty reports whether the output carries nothing.
func (o DecodingOutput) Empty() bool {
	return len(o.Events) == 0 && len(o.ActionItems) == 0 && o.MatchedCounterparty == "" && !o.ProcessSwaps
}

// DecoderContext is passed to address and generic rules, once per log.
type DecoderContext struct {
	Context       context.Context
	Session       *Session
	Transaction   model.EvmTransaction
	Log           model.EvmTxReceiptLog
	AllLogs       []model.EvmTxReceiptLog
	DecodedEvents []*model.HistoryEvent
	ActionItems   []model.ActionItem
}

// EnricherContext is passed to enrichers for a bare transfer event.
type EnricherContext struct {
	Context       context.Context
	Session       *Session
	Transaction   model.EvmTransaction
	Log           model.EvmTxReceiptLog
	AllLogs       []model.EvmTxReceiptLog
	Event         *model.HistoryEvent
	Token         model.TokenMeta
	DecodedEvents []*model.HistoryEvent
	ActionItems   []model.ActionItem
}

// EnrichmentOutput reports what an enricher recognized.
type EnrichmentOutput struct {
	MatchedCounterparty string
	ProcessSwaps        bool
}

// PostContext is passed to post-decoding rules once per transaction.
type PostContext struct {
	Context     context.Context
	Session     *Session
	Transaction model.EvmTransaction
	AllLogs     []model.EvmTxReceiptLog
	Events      []*model.HistoryEvent
}

type (
	Handler         func(*DecoderContext) (DecodingOutput, error)
	EnricherHandler func(*EnricherContext) (EnrichmentOutput, error)
	PostHandler     func(*PostContext) ([]*model.HistoryEvent, error)
)

// Rule is the closed set of rule variants a plugin can contribute.
type Rule interface {
	RuleName() string
	rule()
}

// AddressRule runs for logs emitted by Address.
type AddressRule struct {
	Address common.Address
	Name    string
	Handler Handler
}

// GenericRule runs for every log on the chain.
type GenericRule struct {
	Name    string
	Handler Handler
}

// EnricherRule annotates bare transfer events.
type EnricherRule struct {
	Name    string
	Handler EnricherHandler
}

// PostRule runs after all logs when Counterparty was matched. Lower priority
// runs first.
type PostRule struct {
	Counterparty string
	Priority     int
	Name         string
	Handler      PostHandler
}

func (r AddressRule) RuleName() string  { return r.Name }
func (r GenericRule) RuleName() string  { return r.Name }
func (r EnricherRule) RuleName() string { return r.Name }
func (r PostRule) RuleName() string     { return r.Name }

func (AddressRule) rule()  {}
func (GenericRule) rule()  {}
func (EnricherRule) rule() {}
func (PostRule) rule()     {}
