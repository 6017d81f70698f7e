package decoding

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

var (
	userAddr     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	strangerAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	exchangeAddr = common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60")
	tokenAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token2Addr   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	routerAddr   = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	protocolAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")

	protocolTopic = crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))
)

func testTokens() StaticTokens {
	return StaticTokens{
		tokenAddr:  {Address: tokenAddr.Hex(), ChainID: model.ChainEthereum, Kind: model.TokenERC20, Decimals: 18, Symbol: "TKN"},
		token2Addr: {Address: token2Addr.Hex(), ChainID: model.ChainEthereum, Kind: model.TokenERC20, Decimals: 6, Symbol: "USDX"},
	}
}

func testTx() model.EvmTransaction {
	to := routerAddr
	return model.EvmTransaction{
		TxHash:      common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
		ChainID:     model.ChainEthereum,
		BlockNumber: 18000000,
		Timestamp:   1700000000,
		FromAddress: userAddr,
		ToAddress:   &to,
		Value:       big.NewInt(0),
	}
}

func okReceipt(logs ...model.EvmTxReceiptLog) model.EvmTxReceipt {
	return model.EvmTxReceipt{TxHash: testTx().TxHash, Status: true, Logs: logs}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func transferLog(t *testing.T, index uint64, token, from, to common.Address, raw *big.Int) model.EvmTxReceiptLog {
	t.Helper()
	parsed, err := TokenEventsABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(raw)
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}
	return model.EvmTxReceiptLog{
		LogIndex: index,
		Address:  token,
		Topics:   []common.Hash{TransferTopic, addressTopic(from), addressTopic(to)},
		Data:     data,
	}
}

func protocolLog(index uint64) model.EvmTxReceiptLog {
	return model.EvmTxReceiptLog{
		LogIndex: index,
		Address:  protocolAddr,
		Topics:   []common.Hash{protocolTopic, addressTopic(userAddr)},
		Data:     common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
	}
}

type testPlugin struct {
	name      string
	cpts      []model.CounterpartyDetails
	address   []AddressRule
	generic   []GenericRule
	enrichers []EnricherRule
	post      []PostRule
	owned     map[common.Address]string
}

func (p *testPlugin) Name() string { return p.name }
func (p *testPlugin) Counterparties() []model.CounterpartyDetails { return p.cpts }
func (p *testPlugin) AddressRules() []AddressRule { return p.address }
func (p *testPlugin) DecodingRules() []GenericRule { return p.generic }
func (p *testPlugin) EnricherRules() []EnricherRule { return p.enrichers }
func (p *testPlugin) PostDecodingRules() []PostRule { return p.post }
func (p *testPlugin) AddressesToCounterparties() map[common.Address]string { return p.owned }

func newTestEngine(t *testing.T, tokens TokenResolver, plugins ...Plugin) *Engine {
	t.Helper()
	registry := NewRegistry(model.ChainEthereum, zap.NewNop())
	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.Name(), err)
		}
	}
	engine, err := NewEngine(EngineConfig{
		Registry:  registry,
		Tokens:    tokens,
		Accounts:  NewTrackedAccounts(userAddr),
		Exchanges: map[common.Address]string{exchangeAddr: "binance"},
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func decode(t *testing.T, engine *Engine, tx model.EvmTransaction, receipt model.EvmTxReceipt) []*model.HistoryEvent {
	t.Helper()
	events, err := engine.DecodeTransaction(context.Background(), tx, receipt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return events
}

type remoteFailingTokens struct{}

func (remoteFailingTokens) Token(context.Context, common.Address, model.TokenKind) (model.TokenMeta, error) {
	return model.TokenMeta{}, NewRemoteError("call decimals", context.DeadlineExceeded)
}
