package model

import (
	"fmt"
	"strings"
)

// HistoryEventType is the primary classification of a HistoryEvent.
type HistoryEventType string

const (
	EventTypeTrade         HistoryEventType = "TRADE"
	EventTypeMultiTrade    HistoryEventType = "MULTI_TRADE"
	EventTypeStaking       HistoryEventType = "STAKING"
	EventTypeDeposit       HistoryEventType = "DEPOSIT"
	EventTypeWithdrawal    HistoryEventType = "WITHDRAWAL"
	EventTypeTransfer      HistoryEventType = "TRANSFER"
	EventTypeSpend         HistoryEventType = "SPEND"
	EventTypeReceive       HistoryEventType = "RECEIVE"
	EventTypeAdjustment    HistoryEventType = "ADJUSTMENT"
	EventTypeInformational HistoryEventType = "INFORMATIONAL"
	EventTypeMigrate       HistoryEventType = "MIGRATE"
	EventTypeRenew         HistoryEventType = "RENEW"
	EventTypeLoss          HistoryEventType = "LOSS"
	EventTypeMint          HistoryEventType = "MINT"
	EventTypeBurn          HistoryEventType = "BURN"
	EventTypeFail          HistoryEventType = "FAIL"
)

// HistoryEventSubType refines a HistoryEventType.
type HistoryEventSubType string

const (
	EventSubtypeNone           HistoryEventSubType = "NONE"
	EventSubtypeFee            HistoryEventSubType = "FEE"
	EventSubtypeSpend          HistoryEventSubType = "SPEND"
	EventSubtypeReceive        HistoryEventSubType = "RECEIVE"
	EventSubtypeDepositAsset   HistoryEventSubType = "DEPOSIT_ASSET"
	EventSubtypeRemoveAsset    HistoryEventSubType = "REMOVE_ASSET"
	EventSubtypeReceiveWrapped HistoryEventSubType = "RECEIVE_WRAPPED"
	EventSubtypeReturnWrapped  HistoryEventSubType = "RETURN_WRAPPED"
	EventSubtypeReward         HistoryEventSubType = "REWARD"
	EventSubtypeDonate         HistoryEventSubType = "DONATE"
	EventSubtypeAirdrop        HistoryEventSubType = "AIRDROP"
	EventSubtypeGenerateDebt   HistoryEventSubType = "GENERATE_DEBT"
	EventSubtypePaybackDebt    HistoryEventSubType = "PAYBACK_DEBT"
	EventSubtypeLiquidate      HistoryEventSubType = "LIQUIDATE"
	EventSubtypeApprove        HistoryEventSubType = "APPROVE"
	EventSubtypeBridge         HistoryEventSubType = "BRIDGE"
	EventSubtypeNFT            HistoryEventSubType = "NFT"
	EventSubtypeDeploy         HistoryEventSubType = "DEPLOY"
	EventSubtypeGovernance     HistoryEventSubType = "GOVERNANCE"
	EventSubtypeInterest       HistoryEventSubType = "INTEREST"
)

var knownEventTypes = map[HistoryEventType]struct{}{
	EventTypeTrade: {}, EventTypeMultiTrade: {}, EventTypeStaking: {}, EventTypeDeposit: {},
	EventTypeWithdrawal: {}, EventTypeTransfer: {}, EventTypeSpend: {}, EventTypeReceive: {},
	EventTypeAdjustment: {}, EventTypeInformational: {}, EventTypeMigrate: {}, EventTypeRenew: {},
	EventTypeLoss: {}, EventTypeMint: {}, EventTypeBurn: {}, EventTypeFail: {},
}

var knownEventSubtypes = map[HistoryEventSubType]struct{}{
	EventSubtypeNone: {}, EventSubtypeFee: {}, EventSubtypeSpend: {}, EventSubtypeReceive: {},
	EventSubtypeDepositAsset: {}, EventSubtypeRemoveAsset: {}, EventSubtypeReceiveWrapped: {},
	EventSubtypeReturnWrapped: {}, EventSubtypeReward: {}, EventSubtypeDonate: {}, EventSubtypeAirdrop: {},
	EventSubtypeGenerateDebt: {}, EventSubtypePaybackDebt: {}, EventSubtypeLiquidate: {},
	EventSubtypeApprove: {}, EventSubtypeBridge: {}, EventSubtypeNFT: {}, EventSubtypeDeploy: {},
	EventSubtypeGovernance: {}, EventSubtypeInterest: {},
}

// ParseEventType accepts the canonical name in any case.
func ParseEventType(s string) (HistoryEventType, error) {
	t := HistoryEventType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownEventTypes[t]; !ok {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// ParseEventSubtype accepts the canonical name in any case.
func ParseEventSubtype(s string) (HistoryEventSubType, error) {
	st := HistoryEventSubType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownEventSubtypes[st]; !ok {
		return "", fmt.Errorf("unknown event subtype %q", s)
	}
	return st, nil
}

// UnmarshalText validates the event type.
func (t *HistoryEventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalText validates the event subtype.
func (st *HistoryEventSubType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventSubtype(string(text))
	if err != nil {
		return err
	}
	*st = parsed
	return nil
}

// EntryType distinguishes plain events from chain and swap events.
type EntryType string

const (
	EntryHistoryEvent EntryType = "history event"
	EntryEvmEvent     EntryType = "evm event"
	EntryEvmSwapEvent EntryType = "evm swap event"
)
