package decoding

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// direction is the outcome of classifying a movement between two addresses.
type direction struct {
	classification model.Classification
	label          common.Address
	other          common.Address
	verb           string
	otherName      string
}

// classifyDirection decides the event type of a movement from which side is
// tracked and whether the other side is a known exchange.
func classifyDirection(s *Session, from, to common.Address) (direction, bool) {
	fromTracked := s.IsTracked(from)
	toTracked := s.IsTracked(to)

	switch {
	case fromTracked && toTracked:
		return direction{
			classification: model.Classification{EventType: model.EventTypeTransfer, EventSubtype: model.EventSubtypeNone},
			label:          from,
			other:          to,
			verb:           "Transfer",
		}, true
	case fromTracked:
		if exchange, ok := s.Exchange(to); ok {
			return direction{
				classification: model.Classification{
					EventType:    model.EventTypeDeposit,
					EventSubtype: model.EventSubtypeDepositAsset,
					Counterparty: exchange,
				},
				label:     from,
				other:     to,
				verb:      "Deposit",
				otherName: exchange,
			}, true
		}
		return direction{
			classification: model.Classification{EventType: model.EventTypeSpend, EventSubtype: model.EventSubtypeNone},
			label:          from,
			other:          to,
			verb:           "Send",
		}, true
	case toTracked:
		if exchange, ok := s.Exchange(from); ok {
			return direction{
				classification: model.Classification{
					EventType:    model.EventTypeWithdrawal,
					EventSubtype: model.EventSubtypeRemoveAsset,
					Counterparty: exchange,
				},
				label:     to,
				other:     from,
				verb:      "Withdraw",
				otherName: exchange,
			}, true
		}
		return direction{
			classification: model.Classification{EventType: model.EventTypeReceive, EventSubtype: model.EventSubtypeNone},
			label:          to,
			other:          from,
			verb:           "Receive",
		}, true
	}
	return direction{}, false
}

func (d direction) notes(amount decimal.Decimal, symbol string, from, to common.Address) string {
	fromName, toName := from.Hex(), to.Hex()
	if d.otherName != "" {
		if d.other == to {
			toName = d.otherName
		} else {
			fromName = d.otherName
		}
	}
	return fmt.Sprintf("%s %s %s from %s to %s", d.verb, amount.String(), symbol, fromName, toName)
}

func (d direction) event(tx model.EvmTransaction, seq int, asset string, amount decimal.Decimal, symbol string, from, to common.Address) *model.HistoryEvent {
	c := d.classification
	c.Notes = d.notes(amount, symbol, from, to)
	event := model.NewEvmEvent(tx, seq, asset, amount, d.label.Hex(), c)
	other := d.other
	event.Address = &other
	return event
}

// decodeTransfer builds the bare event for an ERC20 or ERC721 Transfer log.
// It returns a nil event when neither side is tracked or the amount is zero.
func (e *Engine) decodeTransfer(ctx context.Context, s *Session, log model.EvmTxReceiptLog) (*model.HistoryEvent, model.TokenMeta, error) {
	var kind model.TokenKind
	switch len(log.Topics) {
	case 3:
		kind = model.TokenERC20
	case 4:
		kind = model.TokenERC721
	default:
		return nil, model.TokenMeta{}, Malformed("transfer with %d topics", len(log.Topics))
	}

	from, _ := TopicAddress(log.Topics, 1)
	to, _ := TopicAddress(log.Topics, 2)
	if !s.IsTracked(from) && !s.IsTracked(to) {
		return nil, model.TokenMeta{}, nil
	}

	token, err := e.tokens.Token(ctx, log.Address, kind)
	if err != nil {
		if errors.Is(err, ErrRemote) {
			return nil, model.TokenMeta{}, err
		}
		e.logger.Debug("skip transfer of non token contract",
			zap.String("contract", log.Address.Hex()),
			zap.Error(err),
		)
		return nil, model.TokenMeta{}, nil
	}

	tx := s.Transaction()
	var (
		amount  decimal.Decimal
		asset   string
		tokenID *big.Int
	)
	if kind == model.TokenERC721 {
		tokenID = log.Topics[3].Big()
		amount = decimal.NewFromInt(1)
		asset = token.NFTAssetID(tokenID)
	} else {
		parsed, err := TokenEventsABI()
		if err != nil {
			return nil, token, fmt.Errorf("parse token abi: %w", err)
		}
		event, err := mustEvent(parsed, "Transfer")
		if err != nil {
			return nil, token, err
		}
		values, err := UnpackData(event, log.Data)
		if err != nil {
			return nil, token, err
		}
		raw, ok := values[0].(*big.Int)
		if !ok {
			return nil, token, Malformed("transfer value type %T", values[0])
		}
		amount = token.Normalize(raw)
		asset = token.AssetID()
	}
	if amount.IsZero() {
		return nil, token, nil
	}

	dir, ok := classifyDirection(s, from, to)
	if !ok {
		return nil, token, nil
	}
	event := dir.event(tx, s.SequenceIndex(log), asset, amount, token.DisplaySymbol(), from, to)
	if tokenID != nil {
		event.SetExtra("token_id", tokenID.String())
	}
	return event, token, nil
}

// approvalRule labels ERC20 approvals given by tracked owners.
func (e *Engine) approvalRule(dctx *DecoderContext) (DecodingOutput, error) {
	log := dctx.Log
	if log.Topic0() != ApprovalTopic || len(log.Topics) != 3 {
		return NoOutput, nil
	}
	owner, _ := TopicAddress(log.Topics, 1)
	spender, _ := TopicAddress(log.Topics, 2)
	if !dctx.Session.IsTracked(owner) {
		return NoOutput, nil
	}

	token, err := e.tokens.Token(dctx.Context, log.Address, model.TokenERC20)
	if err != nil {
		if errors.Is(err, ErrRemote) {
			return NoOutput, err
		}
		return NoOutput, nil
	}

	parsed, err := TokenEventsABI()
	if err != nil {
		return NoOutput, fmt.Errorf("parse token abi: %w", err)
	}
	approval, err := mustEvent(parsed, "Approval")
	if err != nil {
		return NoOutput, err
	}
	values, err := UnpackData(approval, log.Data)
	if err != nil {
		return NoOutput, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return NoOutput, Malformed("approval value type %T", values[0])
	}
	amount := token.Normalize(raw)

	notes := fmt.Sprintf("Set %s spending approval of %s by %s to %s", token.DisplaySymbol(), owner.Hex(), spender.Hex(), amount.String())
	if amount.IsZero() {
		notes = fmt.Sprintf("Revoke %s spending approval of %s by %s", token.DisplaySymbol(), owner.Hex(), spender.Hex())
	}
	event := model.NewEvmEvent(dctx.Transaction, dctx.Session.SequenceIndex(log), token.AssetID(), amount, owner.Hex(), model.Classification{
		EventType:    model.EventTypeInformational,
		EventSubtype: model.EventSubtypeApprove,
		Notes:        notes,
	})
	event.Address = &spender
	event.MarkClassified()
	return DecodingOutput{Events: []*model.HistoryEvent{event}}, nil
}

// preLogEvents creates the gas fee, contract deployment and native value
// events of a transaction.
func (e *Engine) preLogEvents(s *Session, receipt model.EvmTxReceipt) []*model.HistoryEvent {
	tx := s.Transaction()
	native := tx.ChainID.NativeAsset()
	var events []*model.HistoryEvent

	if s.IsTracked(tx.FromAddress) && tx.GasPrice != nil && tx.GasUsed > 0 {
		fee := new(big.Int).Mul(tx.GasPrice, new(big.Int).SetUint64(tx.GasUsed))
		amount := decimal.NewFromBigInt(fee, -18)
		if amount.IsPositive() {
			event := model.NewEvmEvent(tx, s.NextSequenceIndex(), native, amount, tx.FromAddress.Hex(), model.Classification{
				EventType:    model.EventTypeSpend,
				EventSubtype: model.EventSubtypeFee,
				Counterparty: CounterpartyGas,
				Notes:        fmt.Sprintf("Burn %s %s for gas", amount.String(), native),
			})
			events = append(events, event.MarkClassified())
		}
	}

	if !receipt.Status {
		return events
	}

	to := tx.ToAddress
	if to == nil && receipt.ContractAddress != nil {
		to = receipt.ContractAddress
		if s.IsTracked(tx.FromAddress) {
			deployed := *receipt.ContractAddress
			event := model.NewEvmEvent(tx, s.NextSequenceIndex(), native, decimal.Zero, tx.FromAddress.Hex(), model.Classification{
				EventType:    model.EventTypeInformational,
				EventSubtype: model.EventSubtypeDeploy,
				Notes:        fmt.Sprintf("Deploy contract %s", deployed.Hex()),
			})
			event.Address = &deployed
			events = append(events, event.MarkClassified())
		}
	}

	if to != nil && tx.Value != nil && tx.Value.Sign() > 0 {
		if event := e.nativeTransfer(s, *to, decimal.NewFromBigInt(tx.Value, -18)); event != nil {
			events = append(events, event)
		}
	}
	return events
}

func (e *Engine) nativeTransfer(s *Session, to common.Address, amount decimal.Decimal) *model.HistoryEvent {
	tx := s.Transaction()
	dir, ok := classifyDirection(s, tx.FromAddress, to)
	if !ok {
		return nil
	}
	native := tx.ChainID.NativeAsset()
	return dir.event(tx, s.NextSequenceIndex(), native, amount, native, tx.FromAddress, to)
}
