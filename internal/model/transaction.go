package model

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EvmTransaction is one on-chain transaction as fetched from the chain source.
type EvmTransaction struct {
	TxHash      common.Hash     `json:"tx_hash"`
	ChainID     ChainID         `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   uint64          `json:"timestamp"`
	FromAddress common.Address  `json:"from_address"`
	ToAddress   *common.Address `json:"to_address,omitempty"`
	Value       *big.Int        `json:"value"`
	Gas         uint64          `json:"gas"`
	GasPrice    *big.Int        `json:"gas_price"`
	GasUsed     uint64          `json:"gas_used"`
	InputData   hexutil.Bytes   `json:"input_data"`
	Nonce       uint64          `json:"nonce"`
}

// TimestampMS returns the block time in milliseconds.
func (tx EvmTransaction) TimestampMS() int64 {
	return int64(tx.Timestamp) * 1000
}

// MethodID returns the 4 byte selector of the call data, if any.
func (tx EvmTransaction) MethodID() []byte {
	if len(tx.InputData) < 4 {
		return nil
	}
	return tx.InputData[:4]
}

// EvmTxReceipt holds execution results and the emitted logs.
type EvmTxReceipt struct {
	TxHash          common.Hash       `json:"tx_hash"`
	ContractAddress *common.Address   `json:"contract_address,omitempty"`
	Status          bool              `json:"status"`
	Type            uint8             `json:"type"`
	Logs            []EvmTxReceiptLog `json:"logs"`
}

// SortedLogs returns a copy of the logs ordered by log index.
func (r EvmTxReceipt) SortedLogs() []EvmTxReceiptLog {
	logs := make([]EvmTxReceiptLog, len(r.Logs))
	copy(logs, r.Logs)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].LogIndex < logs[j].LogIndex
	})
	return logs
}

// EvmTxReceiptLog is one event log emitted within a transaction.
type EvmTxReceiptLog struct {
	LogIndex uint64         `json:"log_index"`
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	Removed  bool           `json:"removed"`
}

// Topic0 returns the event signature hash, or the zero hash for anonymous logs.
func (l EvmTxReceiptLog) Topic0() common.Hash {
	if len(l.Topics) == 0 {
		return common.Hash{}
	}
	return l.Topics[0]
}

// MarshalJSON ensures EvmTxReceiptLog is encoded with stable field names.
func (l EvmTxReceiptLog) MarshalJSON() ([]byte, error) {
	type Alias EvmTxReceiptLog
	a := Alias(l)
	if a.Topics == nil {
		a.Topics = []common.Hash{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes an EvmTxReceiptLog from JSON.
func (l *EvmTxReceiptLog) UnmarshalJSON(data []byte) error {
	type Alias EvmTxReceiptLog
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = EvmTxReceiptLog(a)
	return nil
}

// TxBundle is the unit handed to the decoder: a transaction with its receipt.
type TxBundle struct {
	Transaction EvmTransaction `json:"transaction"`
	Receipt     EvmTxReceipt   `json:"receipt"`
}
