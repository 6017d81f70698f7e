package decoding

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LazyABI parses an ABI definition on first use.
type LazyABI struct {
	JSON string

	once   sync.Once
	parsed abi.ABI
	err    error
}

// Get returns the parsed ABI. A parse failure is returned on every call.
func (l *LazyABI) Get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.JSON))
	})
	return l.parsed, l.err
}

var tokenEventsABI = &LazyABI{JSON: `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "owner", "type": "address"},
      {"indexed": true, "name": "spender", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Approval",
    "type": "event"
  }
]`}

// Metadata getters. Some older tokens return bytes32 instead of string.
var (
	tokenMetaStringABI = &LazyABI{JSON: `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`}
	tokenMetaBytes32ABI = &LazyABI{JSON: `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`}
)

// TokenEventsABI returns the parsed ERC20 Transfer/Approval event ABI.
func TokenEventsABI() (abi.ABI, error) {
	return tokenEventsABI.Get()
}

// Topic hashes shared by ERC20 and ERC721.
var (
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// UnpackData decodes the non-indexed arguments of event from log data.
func UnpackData(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, Malformed("unpack %s: %v", event.Name, err)
	}
	return values, nil
}

// TopicAddress reads an address from an indexed topic.
func TopicAddress(topics []common.Hash, idx int) (common.Address, error) {
	if idx >= len(topics) {
		return common.Address{}, Malformed("expected topic %d, got %d topics", idx, len(topics))
	}
	return common.BytesToAddress(topics[idx].Bytes()), nil
}

// ExpectTopics checks the topic count of a log.
func ExpectTopics(topics []common.Hash, n int) error {
	if len(topics) != n {
		return Malformed("expected %d topics, got %d", n, len(topics))
	}
	return nil
}

func mustEvent(parsed abi.ABI, name string) (abi.Event, error) {
	event, ok := parsed.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s missing from abi", name)
	}
	return event, nil
}
