package indexer

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"taxScope/internal/decoding"
)

// discoveryQueries returns the topic filters selecting the logs that put a
// transaction in scope: Transfer logs sent from or to the accounts and
// Approval logs given by them. Transactions without such a log, reverted ones
// included, are not discovered.
func discoveryQueries(accounts []common.Address) [][][]common.Hash {
	topics := make([]common.Hash, 0, len(accounts))
	for _, account := range accounts {
		topics = append(topics, common.BytesToHash(account.Bytes()))
	}
	transfer := []common.Hash{decoding.TransferTopic}
	return [][][]common.Hash{
		{transfer, topics},
		{transfer, nil, topics},
		{{decoding.ApprovalTopic}, topics},
	}
}

type txRef struct {
	hash        common.Hash
	blockNumber uint64
	txIndex     uint
}

// touchedTransactions returns the distinct transactions of logs in chain
// order. Removed logs and hashes in seen are skipped; new hashes are added to
// seen.
func touchedTransactions(logs []types.Log, seen map[common.Hash]struct{}) []txRef {
	var refs []txRef
	for _, log := range logs {
		if log.Removed {
			continue
		}
		if _, ok := seen[log.TxHash]; ok {
			continue
		}
		seen[log.TxHash] = struct{}{}
		refs = append(refs, txRef{hash: log.TxHash, blockNumber: log.BlockNumber, txIndex: log.TxIndex})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].blockNumber != refs[j].blockNumber {
			return refs[i].blockNumber < refs[j].blockNumber
		}
		return refs[i].txIndex < refs[j].txIndex
	})
	return refs
}
