package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in r.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Chunks splits r into consecutive ranges of at most size blocks, the way
// eth_getLogs queries are issued.
func (r BlockRange) Chunks(size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if r.To < r.From {
		return nil, fmt.Errorf("to block %d is before from block %d", r.To, r.From)
	}

	chunks := make([]BlockRange, 0, (r.Len()+size-1)/size)
	for start := r.From; ; start += size {
		end := r.To
		if r.To-start >= size {
			end = start + size - 1
		}
		chunks = append(chunks, BlockRange{From: start, To: end})
		if end == r.To {
			return chunks, nil
		}
	}
}

// resume drops the blocks up to and including the last checkpointed one. It
// reports false when nothing is left to sync.
func (r BlockRange) resume(last uint64, ok bool) (BlockRange, bool) {
	if ok && last >= r.From {
		r.From = last + 1
	}
	return r, r.From <= r.To
}
