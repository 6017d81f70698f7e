package model

// DecodeError records a transaction that could not be decoded.
type DecodeError struct {
	ChainID     ChainID `json:"chain_id"`
	BlockNumber uint64  `json:"block_number,omitempty"`
	TxHash      string  `json:"tx_hash"`
	Kind        string  `json:"kind"`
	Error       string  `json:"error"`
}
