package decoding

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"taxScope/internal/model"
)

// TrackedAccounts is the live set of user addresses. Sessions take snapshots.
type TrackedAccounts struct {
	mu  sync.RWMutex
	set map[common.Address]struct{}
}

func NewTrackedAccounts(addresses ...common.Address) *TrackedAccounts {
	t := &TrackedAccounts{set: make(map[common.Address]struct{}, len(addresses))}
	for _, addr := range addresses {
		t.set[addr] = struct{}{}
	}
	return t
}

// Add starts tracking an address for future sessions.
func (t *TrackedAccounts) Add(address common.Address) {
	t.mu.Lock()
	t.set[address] = struct{}{}
	t.mu.Unlock()
}

// Snapshot copies the current set.
func (t *TrackedAccounts) Snapshot() map[common.Address]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[common.Address]struct{}, len(t.set))
	for addr := range t.set {
		out[addr] = struct{}{}
	}
	return out
}

// Session is the per-transaction decoding state. It owns the sequence counter
// and a snapshot of tracked accounts, so sessions for different transactions
// never share mutable state.
type Session struct {
	tx        model.EvmTransaction
	tracked   map[common.Address]struct{}
	exchanges map[common.Address]string

	inLogs      bool
	preCount    int
	maxLogIndex int
	synthetic   int
}

// NewSession starts decoding tx. exchanges is read only.
func NewSession(tx model.EvmTransaction, logs []model.EvmTxReceiptLog, tracked *TrackedAccounts, exchanges map[common.Address]string) *Session {
	s := &Session{
		tx:          tx,
		tracked:     map[common.Address]struct{}{},
		exchanges:   exchanges,
		maxLogIndex: -1,
	}
	if tracked != nil {
		s.tracked = tracked.Snapshot()
	}
	for _, log := range logs {
		if int(log.LogIndex) > s.maxLogIndex {
			s.maxLogIndex = int(log.LogIndex)
		}
	}
	return s
}

// Transaction returns the transaction being decoded.
func (s *Session) Transaction() model.EvmTransaction {
	return s.tx
}

// IsTracked reports whether address belongs to the user.
func (s *Session) IsTracked(address common.Address) bool {
	_, ok := s.tracked[address]
	return ok
}

// Exchange returns the exchange owning a deposit address.
func (s *Session) Exchange(address common.Address) (string, bool) {
	name, ok := s.exchanges[address]
	return name, ok
}

// startLogs closes the pre-log phase. Log based indexes start after the events
// created so far.
func (s *Session) startLogs() {
	s.inLogs = true
}

// SequenceIndex returns the index of the event decoded from log.
func (s *Session) SequenceIndex(log model.EvmTxReceiptLog) int {
	return s.preCount + int(log.LogIndex)
}

// NextSequenceIndex returns a fresh index for an event with no log of its own.
// Before log processing the indexes come first; afterwards they follow the
// last log.
func (s *Session) NextSequenceIndex() int {
	if !s.inLogs {
		idx := s.preCount
		s.preCount++
		return idx
	}
	idx := s.preCount + s.maxLogIndex + 1 + s.synthetic
	s.synthetic++
	return idx
}

// Reshuffle moves ordered onto fresh consecutive indexes after every log of
// the transaction, in the given order, so no other event sorts between them.
// Nil entries are ignored.
func (s *Session) Reshuffle(ordered ...*model.HistoryEvent) {
	group := make([]*model.HistoryEvent, 0, len(ordered))
	seen := make(map[*model.HistoryEvent]struct{}, len(ordered))
	for _, event := range ordered {
		if event == nil {
			continue
		}
		if _, ok := seen[event]; ok {
			continue
		}
		seen[event] = struct{}{}
		group = append(group, event)
	}
	if len(group) < 2 {
		return
	}
	for _, event := range group {
		event.SequenceIndex = s.NextSequenceIndex()
	}
}
