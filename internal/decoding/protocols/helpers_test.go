package protocols

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

var (
	userAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tknAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	usdxAddr   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	uniAddr    = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	poolAddr   = common.HexToAddress("0x4000000000000000000000000000000000000004")
	daiAddr    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	pDaiJar    = common.HexToAddress("0x6949Bb624E8e8A90F87cD2058139fcd77D2F3F87")
	v2Router   = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	uniDropper = common.HexToAddress("0x090D4613473dEE047c3f2706764f49E0821D256e")
)

func testTokens() decoding.StaticTokens {
	meta := func(addr common.Address, decimals uint8, symbol string) model.TokenMeta {
		return model.TokenMeta{Address: addr.Hex(), ChainID: model.ChainEthereum, Kind: model.TokenERC20, Decimals: decimals, Symbol: symbol}
	}
	return decoding.StaticTokens{
		tknAddr:  meta(tknAddr, 18, "TKN"),
		usdxAddr: meta(usdxAddr, 6, "USDX"),
		uniAddr:  meta(uniAddr, 18, "UNI"),
		daiAddr:  meta(daiAddr, 18, "DAI"),
		pDaiJar:  meta(pDaiJar, 18, "pDAI"),
		wethAddr: meta(wethAddr, 18, "WETH"),
	}
}

func testTx(to common.Address) model.EvmTransaction {
	return model.EvmTransaction{
		TxHash:      common.HexToHash("0xfeed"),
		ChainID:     model.ChainEthereum,
		BlockNumber: 19000000,
		Timestamp:   1710000000,
		FromAddress: userAddr,
		ToAddress:   &to,
		Value:       big.NewInt(0),
	}
}

func receipt(logs ...model.EvmTxReceiptLog) model.EvmTxReceipt {
	return model.EvmTxReceipt{TxHash: common.HexToHash("0xfeed"), Status: true, Logs: logs}
}

func units(n int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func transferLog(t *testing.T, index uint64, token, from, to common.Address, raw *big.Int) model.EvmTxReceiptLog {
	t.Helper()
	parsed, err := decoding.TokenEventsABI()
	require.NoError(t, err)
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(raw)
	require.NoError(t, err)
	return model.EvmTxReceiptLog{
		LogIndex: index,
		Address:  token,
		Topics:   []common.Hash{decoding.TransferTopic, addressTopic(from), addressTopic(to)},
		Data:     data,
	}
}

func eventLog(t *testing.T, index uint64, contract common.Address, l *decoding.LazyABI, name string, topics []common.Hash, args ...interface{}) model.EvmTxReceiptLog {
	t.Helper()
	parsed, err := l.Get()
	require.NoError(t, err)
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return model.EvmTxReceiptLog{
		LogIndex: index,
		Address:  contract,
		Topics:   append([]common.Hash{event.ID}, topics...),
		Data:     data,
	}
}

func newEngine(t *testing.T, registry *decoding.Registry) *decoding.Engine {
	t.Helper()
	engine, err := decoding.NewEngine(decoding.EngineConfig{
		Registry: registry,
		Tokens:   testTokens(),
		Accounts: decoding.NewTrackedAccounts(userAddr),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return engine
}

func buildRegistry(t *testing.T, deps decoding.PluginDeps, ctors ...decoding.PluginConstructor) *decoding.Registry {
	t.Helper()
	if deps.Tokens == nil {
		deps.Tokens = testTokens()
	}
	deps.Logger = zap.NewNop()
	registry, err := decoding.BuildRegistry(model.ChainEthereum, ctors, deps)
	require.NoError(t, err)
	return registry
}

func decodeTx(t *testing.T, engine *decoding.Engine, tx model.EvmTransaction, r model.EvmTxReceipt) []*model.HistoryEvent {
	t.Helper()
	events, err := engine.DecodeTransaction(context.Background(), tx, r)
	require.NoError(t, err)
	return events
}

// poolCaller answers the V3 pool getters.
type poolCaller struct {
	token0 common.Address
	token1 common.Address
	err    error
	calls  int
}

func (c *poolCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	parsed, err := v3PoolABI.Get()
	if err != nil {
		return nil, err
	}
	for name, method := range parsed.Methods {
		if !bytes.Equal(msg.Data[:4], method.ID) {
			continue
		}
		switch name {
		case "token0":
			return method.Outputs.Pack(c.token0)
		case "token1":
			return method.Outputs.Pack(c.token1)
		case "fee":
			return method.Outputs.Pack(big.NewInt(3000))
		}
	}
	return nil, errors.New("unknown method")
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }
