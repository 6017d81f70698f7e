package decoding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// EngineConfig wires the engine to its collaborators.
type EngineConfig struct {
	Registry  *Registry
	Tokens    TokenResolver
	Accounts  *TrackedAccounts
	Exchanges map[common.Address]string
	Logger    *zap.Logger
}

// Engine turns one transaction and its logs into ordered HistoryEvents.
// An Engine is safe for concurrent use across transactions.
type Engine struct {
	registry  *Registry
	tokens    TokenResolver
	accounts  *TrackedAccounts
	exchanges map[common.Address]string
	logger    *zap.Logger
	builtins  []GenericRule
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token resolver is nil")
	}
	if cfg.Accounts == nil {
		cfg.Accounts = NewTrackedAccounts()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	exchanges := make(map[common.Address]string, len(cfg.Exchanges))
	for addr, name := range cfg.Exchanges {
		exchanges[addr] = name
	}
	e := &Engine{
		registry:  cfg.Registry,
		tokens:    cfg.Tokens,
		accounts:  cfg.Accounts,
		exchanges: exchanges,
		logger:    cfg.Logger,
	}
	e.builtins = []GenericRule{{Name: "erc20-approval", Handler: e.approvalRule}}
	return e, nil
}

// Registry returns the registry the engine dispatches to.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// txState is the in-progress result of decoding one transaction.
type txState struct {
	events         []*model.HistoryEvent
	actionItems    []model.ActionItem
	counterparties map[string]struct{}
	processSwaps   bool
	symbols        map[*model.HistoryEvent]string
}

func (st *txState) remove(target *model.HistoryEvent) {
	for i, event := range st.events {
		if event == target {
			st.events = append(st.events[:i], st.events[i+1:]...)
			return
		}
	}
}

// DecodeTransaction decodes tx. Malformed logs and failing rules are logged and
// skipped; only remote errors abort the transaction.
func (e *Engine) DecodeTransaction(ctx context.Context, tx model.EvmTransaction, receipt model.EvmTxReceipt) ([]*model.HistoryEvent, error) {
	logs := receipt.SortedLogs()
	session := NewSession(tx, logs, e.accounts, e.exchanges)
	state := &txState{
		counterparties: make(map[string]struct{}),
		symbols:        make(map[*model.HistoryEvent]string),
	}
	logger := e.logger.With(zap.String("tx_hash", tx.TxHash.Hex()), zap.Uint64("chain_id", uint64(tx.ChainID)))

	state.events = append(state.events, e.preLogEvents(session, receipt)...)
	session.startLogs()

	if receipt.Status {
		for _, log := range logs {
			if log.Removed {
				logger.Debug("skip removed log", zap.Uint64("log_index", log.LogIndex))
				continue
			}
			if err := e.decodeLog(ctx, session, state, logs, log, logger); err != nil {
				return nil, err
			}
		}
		if err := e.runPostRules(ctx, session, state, logs, logger); err != nil {
			return nil, err
		}
	}

	for _, item := range state.actionItems {
		logger.Debug("unmatched action item",
			zap.String("from_type", string(item.FromEventType)),
			zap.String("from_subtype", string(item.FromEventSubtype)),
			zap.String("asset", item.Asset),
		)
	}

	if len(state.events) == 0 && tx.ToAddress != nil {
		if event := e.nativeTransfer(session, *tx.ToAddress, decimal.Zero); event != nil {
			state.events = append(state.events, event)
		}
	}

	sortEvents(state.events)
	if state.processSwaps {
		state.events = consolidateSwaps(state.events, logger)
	}
	uniqueIndexes(state.events)
	return state.events, nil
}

func (e *Engine) decodeLog(ctx context.Context, session *Session, state *txState, logs []model.EvmTxReceiptLog, log model.EvmTxReceiptLog, logger *zap.Logger) error {
	logger = logger.With(zap.Uint64("log_index", log.LogIndex))
	var produced []*model.HistoryEvent

	var (
		transfer *model.HistoryEvent
		token    model.TokenMeta
	)
	if log.Topic0() == TransferTopic {
		var err error
		transfer, token, err = e.decodeTransfer(ctx, session, log)
		switch {
		case errors.Is(err, ErrRemote):
			return err
		case err != nil:
			logger.Error("transfer decoding failed", zap.Error(err))
		case transfer != nil:
			state.events = append(state.events, transfer)
			state.symbols[transfer] = token.DisplaySymbol()
			produced = append(produced, transfer)
		}
	}

	dctx := &DecoderContext{
		Context:       ctx,
		Session:       session,
		Transaction:   session.Transaction(),
		Log:           log,
		AllLogs:       logs,
		DecodedEvents: state.events,
		ActionItems:   state.actionItems,
	}
	run := func(name string, handler Handler) error {
		out, err := invokeRule(handler, dctx)
		if err != nil {
			if errors.Is(err, ErrRemote) {
				return err
			}
			logger.Error("decoding rule failed", zap.String("rule", name), zap.Error(err))
			return nil
		}
		if out.Empty() {
			return nil
		}
		state.events = append(state.events, out.Events...)
		produced = append(produced, out.Events...)
		state.actionItems = append(state.actionItems, out.ActionItems...)
		if out.MatchedCounterparty != "" {
			state.counterparties[out.MatchedCounterparty] = struct{}{}
		}
		state.processSwaps = state.processSwaps || out.ProcessSwaps
		dctx.DecodedEvents = state.events
		dctx.ActionItems = state.actionItems
		return nil
	}

	for _, rule := range e.registry.Lookup(log.Address) {
		if err := run(rule.Name, rule.Handler); err != nil {
			return err
		}
	}
	for _, rule := range e.builtins {
		if err := run(rule.Name, rule.Handler); err != nil {
			return err
		}
	}
	for _, rule := range e.registry.GenericRules() {
		if err := run(rule.Name, rule.Handler); err != nil {
			return err
		}
	}

	for _, event := range produced {
		e.applyActionItems(session, state, event)
	}

	if transfer != nil && containsEvent(state.events, transfer) && !transfer.IsClassified() && transfer.EventSubtype == model.EventSubtypeNone {
		if err := e.enrich(ctx, session, state, logs, log, transfer, token, logger); err != nil {
			return err
		}
	}
	return nil
}

// applyActionItems matches pending items against a freshly produced event.
// The first matching transform item is consumed.
func (e *Engine) applyActionItems(session *Session, state *txState, event *model.HistoryEvent) {
	for idx := 0; idx < len(state.actionItems); idx++ {
		item := state.actionItems[idx]
		if !item.Matches(event) {
			continue
		}
		switch item.Action {
		case model.ActionSkip:
			state.actionItems = append(state.actionItems[:idx], state.actionItems[idx+1:]...)
			state.remove(event)
			return
		case model.ActionSkipAndKeep:
			continue
		}

		item.Apply(event, state.symbols[event])
		if item.PairWithNext {
			if idx+1 < len(state.actionItems) {
				state.actionItems[idx+1].PairedEvents = []*model.HistoryEvent{event}
				state.actionItems[idx+1].PairedEventsFirst = true
			} else {
				e.logger.Error("pair with next action item requested without a next item",
					zap.String("event_identifier", event.EventIdentifier),
				)
			}
		}
		if len(item.PairedEvents) > 0 {
			ordered := append([]*model.HistoryEvent{event}, item.PairedEvents...)
			if item.PairedEventsFirst {
				ordered = append(append([]*model.HistoryEvent{}, item.PairedEvents...), event)
			}
			session.Reshuffle(ordered...)
		}
		state.actionItems = append(state.actionItems[:idx], state.actionItems[idx+1:]...)
		return
	}
}

func (e *Engine) enrich(ctx context.Context, session *Session, state *txState, logs []model.EvmTxReceiptLog, log model.EvmTxReceiptLog, transfer *model.HistoryEvent, token model.TokenMeta, logger *zap.Logger) error {
	ectx := &EnricherContext{
		Context:       ctx,
		Session:       session,
		Transaction:   session.Transaction(),
		Log:           log,
		AllLogs:       logs,
		Event:         transfer,
		Token:         token,
		DecodedEvents: state.events,
		ActionItems:   state.actionItems,
	}
	for _, rule := range e.registry.EnricherRules() {
		out, err := invokeEnricher(rule.Handler, ectx)
		if err != nil {
			if errors.Is(err, ErrRemote) {
				return err
			}
			logger.Error("enricher failed", zap.String("rule", rule.Name), zap.Error(err))
			continue
		}
		if out.MatchedCounterparty == "" && !out.ProcessSwaps {
			continue
		}
		if out.MatchedCounterparty != "" {
			state.counterparties[out.MatchedCounterparty] = struct{}{}
		}
		state.processSwaps = state.processSwaps || out.ProcessSwaps
		return nil
	}
	return nil
}

func (e *Engine) runPostRules(ctx context.Context, session *Session, state *txState, logs []model.EvmTxReceiptLog, logger *zap.Logger) error {
	tx := session.Transaction()
	if tx.ToAddress != nil {
		if cpt, ok := e.registry.CounterpartyForAddress(*tx.ToAddress); ok {
			state.counterparties[cpt] = struct{}{}
		}
	}
	if len(state.counterparties) == 0 {
		return nil
	}
	counterparties := make([]string, 0, len(state.counterparties))
	for cpt := range state.counterparties {
		counterparties = append(counterparties, cpt)
	}
	sort.Strings(counterparties)

	for _, rule := range e.registry.PostRules(counterparties) {
		pctx := &PostContext{
			Context:     ctx,
			Session:     session,
			Transaction: tx,
			AllLogs:     logs,
			Events:      state.events,
		}
		events, err := invokePost(rule.Handler, pctx)
		if err != nil {
			if errors.Is(err, ErrRemote) {
				return err
			}
			logger.Error("post decoding rule failed",
				zap.String("rule", rule.Name),
				zap.String("counterparty", rule.Counterparty),
				zap.Error(err),
			)
			continue
		}
		if events != nil {
			state.events = events
		}
		state.processSwaps = true
	}
	return nil
}

func invokeRule(handler Handler, dctx *DecoderContext) (out DecodingOutput, err error) {
	defer recoverRule(&err)
	return handler(dctx)
}

func invokeEnricher(handler EnricherHandler, ectx *EnricherContext) (out EnrichmentOutput, err error) {
	defer recoverRule(&err)
	return handler(ectx)
}

func invokePost(handler PostHandler, pctx *PostContext) (events []*model.HistoryEvent, err error) {
	defer recoverRule(&err)
	return handler(pctx)
}

// recoverRule turns a panicking rule (typically an out of range read of
// adversarial log data) into a malformed log error.
func recoverRule(err *error) {
	if r := recover(); r != nil {
		*err = Malformed("rule panicked: %v", r)
	}
}

func containsEvent(events []*model.HistoryEvent, target *model.HistoryEvent) bool {
	for _, event := range events {
		if event == target {
			return true
		}
	}
	return false
}

// uniqueIndexes bumps colliding indexes of sorted events so each event gets
// its own storage key without changing the order.
func uniqueIndexes(events []*model.HistoryEvent) {
	for i := 1; i < len(events); i++ {
		if events[i].SequenceIndex <= events[i-1].SequenceIndex {
			events[i].SequenceIndex = events[i-1].SequenceIndex + 1
		}
	}
}

func sortEvents(events []*model.HistoryEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SequenceIndex < events[j].SequenceIndex
	})
}
