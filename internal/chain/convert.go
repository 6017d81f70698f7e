package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"taxScope/internal/model"
)

// ToBundle converts go-ethereum types into the decoder's transaction bundle.
func ToBundle(chainID model.ChainID, tx *types.Transaction, receipt *types.Receipt, from common.Address, timestamp uint64) model.TxBundle {
	return model.TxBundle{
		Transaction: ToTransaction(chainID, tx, receipt, from, timestamp),
		Receipt:     ToReceipt(receipt),
	}
}

func ToTransaction(chainID model.ChainID, tx *types.Transaction, receipt *types.Receipt, from common.Address, timestamp uint64) model.EvmTransaction {
	gasPrice := tx.GasPrice()
	if receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
		gasPrice = receipt.EffectiveGasPrice
	}
	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	value := tx.Value()
	if value == nil {
		value = new(big.Int)
	}
	return model.EvmTransaction{
		TxHash:      tx.Hash(),
		ChainID:     chainID,
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
		FromAddress: from,
		ToAddress:   tx.To(),
		Value:       new(big.Int).Set(value),
		Gas:         tx.Gas(),
		GasPrice:    gasPrice,
		GasUsed:     receipt.GasUsed,
		InputData:   tx.Data(),
		Nonce:       tx.Nonce(),
	}
}

func ToReceipt(receipt *types.Receipt) model.EvmTxReceipt {
	out := model.EvmTxReceipt{
		TxHash: receipt.TxHash,
		Status: receipt.Status == types.ReceiptStatusSuccessful,
		Type:   receipt.Type,
		Logs:   make([]model.EvmTxReceiptLog, 0, len(receipt.Logs)),
	}
	if receipt.ContractAddress != (common.Address{}) {
		addr := receipt.ContractAddress
		out.ContractAddress = &addr
	}
	for _, log := range receipt.Logs {
		out.Logs = append(out.Logs, ToLog(log))
	}
	return out
}

func ToLog(log *types.Log) model.EvmTxReceiptLog {
	topics := make([]common.Hash, len(log.Topics))
	copy(topics, log.Topics)
	return model.EvmTxReceiptLog{
		LogIndex: uint64(log.Index),
		Address:  log.Address,
		Topics:   topics,
		Data:     append([]byte(nil), log.Data...),
		Removed:  log.Removed,
	}
}
