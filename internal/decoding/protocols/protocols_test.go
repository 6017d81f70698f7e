package protocols

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/accounting/costbasis"
	"taxScope/internal/decoding"
	"taxScope/internal/model"
	"taxScope/internal/price"
)

type swapOracle struct {
	prices price.SwapPrices
	query  price.SwapQuery
}

func (o *swapOracle) Price(string, int64) (decimal.Decimal, bool) { return decimal.Zero, false }

func (o *swapOracle) SwapPrices(q price.SwapQuery) (price.SwapPrices, bool) {
	o.query = q
	return o.prices, true
}

func asset(token common.Address) string {
	return erc20Asset(model.ChainEthereum, token)
}

func TestPickleDepositFeedsAccountant(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewPickleFinance)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(pDaiJar), receipt(
		transferLog(t, 0, daiAddr, userAddr, pDaiJar, units(10, 18)),
		transferLog(t, 1, pDaiJar, common.Address{}, userAddr, units(9, 18)),
	))
	require.Len(t, events, 2)

	deposit, wrapped := events[0], events[1]
	assert.Equal(t, model.EventTypeDeposit, deposit.EventType)
	assert.Equal(t, model.EventSubtypeDepositAsset, deposit.EventSubtype)
	assert.Equal(t, CounterpartyPickle, deposit.Counterparty)
	assert.Equal(t, "Deposit 10 DAI in pickle contract", deposit.Notes)
	assert.Equal(t, model.EventTypeReceive, wrapped.EventType)
	assert.Equal(t, model.EventSubtypeReceiveWrapped, wrapped.EventSubtype)
	assert.Equal(t, "Receive 9 pDAI after depositing in pickle contract", wrapped.Notes)
	assert.Equal(t, deposit.SequenceIndex+1, wrapped.SequenceIndex)

	pot := costbasis.NewPot(zap.NewNop())
	oracle := &swapOracle{prices: price.SwapPrices{Out: decimal.NewFromInt(2), In: decimal.NewFromInt(1)}}
	accountant := accounting.NewTransactionAccountant(accounting.NewSettingsRegistry(zap.NewNop(), registry), pot, oracle, zap.NewNop())
	accountant.Reset(accounting.ReportSettings{})

	items := make([]accounting.Item, 0, len(events))
	for _, e := range events {
		items = append(items, e)
	}
	summary := accountant.ProcessAll(items)
	assert.Equal(t, 2, summary.Consumed)
	assert.Empty(t, accountant.MissingPrices())
	assert.Equal(t, asset(daiAddr), oracle.query.AssetOut)
	assert.Equal(t, asset(pDaiJar), oracle.query.AssetIn)

	processed := pot.Processed()
	require.Len(t, processed, 2)
	assert.Equal(t, "spend", processed[0].Kind)
	assert.Equal(t, "2", processed[0].Price)
	assert.Equal(t, "acquisition", processed[1].Kind)
	assert.Equal(t, "1", processed[1].Price)
	assert.Equal(t, common.HexToHash("0xfeed").Hex(), processed[0].TxHash)
	assert.True(t, pot.Holdings(asset(pDaiJar)).Equal(decimal.NewFromInt(9)))
}

func TestPickleWithdrawUsesActionItem(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewPickleFinance)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(pDaiJar), receipt(
		transferLog(t, 0, pDaiJar, userAddr, common.Address{}, units(9, 18)),
		transferLog(t, 1, daiAddr, pDaiJar, userAddr, units(10, 18)),
	))
	require.Len(t, events, 2)

	returned, withdrawn := events[0], events[1]
	assert.Equal(t, model.EventSubtypeReturnWrapped, returned.EventSubtype)
	assert.Equal(t, "Return 9 pDAI to the pickle contract", returned.Notes)
	assert.Equal(t, model.EventTypeWithdrawal, withdrawn.EventType)
	assert.Equal(t, model.EventSubtypeRemoveAsset, withdrawn.EventSubtype)
	assert.Equal(t, CounterpartyPickle, withdrawn.Counterparty)
	assert.Equal(t, "Unstake 10 DAI from the pickle contract", withdrawn.Notes)
	assert.Less(t, returned.SequenceIndex, withdrawn.SequenceIndex)
}

func TestCurveReloadFromRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	plugin, err := NewCurve(decoding.PluginDeps{ChainID: model.ChainEthereum, Redis: db, Logger: zap.NewNop()})
	require.NoError(t, err)
	curve := plugin.(*Curve)

	registry := decoding.NewRegistry(model.ChainEthereum, zap.NewNop())
	require.NoError(t, registry.Register(curve))
	key := CurvePoolsKey(model.ChainEthereum)

	mock.ExpectSMembers(key).SetVal([]string{poolAddr.Hex(), "not-an-address"})
	assert.Equal(t, 1, registry.ReloadAll(context.Background()))
	assert.True(t, curve.IsPool(poolAddr))

	mock.ExpectSMembers(key).SetVal([]string{poolAddr.Hex()})
	assert.Equal(t, 0, registry.ReloadAll(context.Background()))
	assert.Len(t, registry.Lookup(poolAddr), 1)

	mock.ExpectSMembers(key).SetErr(errors.New("connection refused"))
	_, err = curve.Reload(context.Background())
	assert.True(t, errors.Is(err, decoding.ErrRemote))
	require.NoError(t, mock.ExpectationsWereMet())

	engine := newEngine(t, registry)
	events := decodeTx(t, engine, testTx(poolAddr), receipt(
		transferLog(t, 0, tknAddr, userAddr, poolAddr, units(2, 18)),
		transferLog(t, 1, usdxAddr, poolAddr, userAddr, units(5, 6)),
		eventLog(t, 2, poolAddr, curvePoolABI, "TokenExchange", []common.Hash{addressTopic(userAddr)},
			big.NewInt(0), units(2, 18), big.NewInt(1), units(5, 6)),
	))
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, model.EventTypeTrade, e.EventType)
		assert.Equal(t, CounterpartyCurve, e.Counterparty)
		assert.Equal(t, model.EntryEvmSwapEvent, e.EntryType)
	}
	assert.Equal(t, model.EventSubtypeSpend, events[0].EventSubtype)
	assert.Equal(t, model.EventSubtypeReceive, events[1].EventSubtype)
}

func TestCurveIgnoresUnknownPool(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewCurve)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(poolAddr), receipt(
		transferLog(t, 0, tknAddr, userAddr, poolAddr, units(2, 18)),
		eventLog(t, 1, poolAddr, curvePoolABI, "TokenExchange", []common.Hash{addressTopic(userAddr)},
			big.NewInt(0), units(2, 18), big.NewInt(1), units(5, 6)),
	))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventTypeSpend, events[0].EventType)
	assert.Empty(t, events[0].Counterparty)
}

func TestWethWrap(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewWeth)
	engine := newEngine(t, registry)

	tx := testTx(wethAddr)
	tx.Value = units(1, 18)
	events := decodeTx(t, engine, tx, receipt(
		eventLog(t, 0, wethAddr, wethABI, "Deposit", []common.Hash{addressTopic(userAddr)}, units(1, 18)),
	))
	require.Len(t, events, 2)

	assert.Equal(t, model.EventTypeDeposit, events[0].EventType)
	assert.Equal(t, "ETH", events[0].Asset)
	assert.Equal(t, "Wrap 1 ETH in WETH", events[0].Notes)
	assert.Equal(t, model.EventSubtypeReceiveWrapped, events[1].EventSubtype)
	assert.Equal(t, asset(wethAddr), events[1].Asset)
	assert.True(t, events[1].Amount.Equal(decimal.NewFromInt(1)))
}

func TestWethUnwrap(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewWeth)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(wethAddr), receipt(
		eventLog(t, 0, wethAddr, wethABI, "Withdrawal", []common.Hash{addressTopic(userAddr)}, units(3, 18)),
	))
	require.Len(t, events, 2)

	assert.Equal(t, model.EventSubtypeReturnWrapped, events[0].EventSubtype)
	assert.Equal(t, asset(wethAddr), events[0].Asset)
	assert.Equal(t, model.EventTypeWithdrawal, events[1].EventType)
	assert.Equal(t, "ETH", events[1].Asset)
	assert.Equal(t, events[0].SequenceIndex+1, events[1].SequenceIndex)
}

func TestWethUnsupportedChain(t *testing.T) {
	_, err := NewWeth(decoding.PluginDeps{ChainID: model.ChainPolygon})
	assert.Error(t, err)
}

func TestUniswapV2SwapNotes(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewUniswapV2)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(v2Router), receipt(
		transferLog(t, 0, tknAddr, userAddr, poolAddr, units(2, 18)),
		transferLog(t, 1, usdxAddr, poolAddr, userAddr, units(5, 6)),
		eventLog(t, 2, poolAddr, v2PairABI, "Swap", []common.Hash{addressTopic(v2Router), addressTopic(userAddr)},
			units(2, 18), big.NewInt(0), big.NewInt(0), units(5, 6)),
	))
	require.Len(t, events, 2)

	assert.Equal(t, model.EventSubtypeSpend, events[0].EventSubtype)
	assert.Equal(t, "Swap 2 TKN in uniswap-v2", events[0].Notes)
	assert.Equal(t, model.EventSubtypeReceive, events[1].EventSubtype)
	assert.Equal(t, "Receive 5 USDX as the result of a swap in uniswap-v2", events[1].Notes)
	assert.Equal(t, CounterpartyUniswapV2, events[1].Counterparty)
}

func TestUniswapV2SwapAcrossApproval(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewUniswapV2)
	engine := newEngine(t, registry)

	approval := model.EvmTxReceiptLog{
		LogIndex: 1,
		Address:  tknAddr,
		Topics:   []common.Hash{decoding.ApprovalTopic, addressTopic(userAddr), addressTopic(v2Router)},
		Data:     common.LeftPadBytes(units(10, 18).Bytes(), 32),
	}
	events := decodeTx(t, engine, testTx(v2Router), receipt(
		transferLog(t, 0, tknAddr, userAddr, poolAddr, units(2, 18)),
		approval,
		transferLog(t, 2, usdxAddr, poolAddr, userAddr, units(5, 6)),
		eventLog(t, 3, poolAddr, v2PairABI, "Swap", []common.Hash{addressTopic(v2Router), addressTopic(userAddr)},
			units(2, 18), big.NewInt(0), big.NewInt(0), units(5, 6)),
	))
	require.Len(t, events, 3)

	approve, spend, receive := events[0], events[1], events[2]
	assert.Equal(t, model.EventSubtypeApprove, approve.EventSubtype)
	assert.Equal(t, model.EventSubtypeSpend, spend.EventSubtype)
	assert.Equal(t, model.EventSubtypeReceive, receive.EventSubtype)
	assert.Equal(t, spend.SequenceIndex+1, receive.SequenceIndex)
	assert.Equal(t, model.EntryEvmSwapEvent, spend.EntryType)
	assert.Equal(t, model.EntryEvmSwapEvent, receive.EntryType)

	pot := costbasis.NewPot(zap.NewNop())
	oracle := &swapOracle{prices: price.SwapPrices{Out: decimal.NewFromInt(3), In: decimal.NewFromFloat(1.2)}}
	accountant := accounting.NewTransactionAccountant(accounting.NewSettingsRegistry(zap.NewNop(), registry), pot, oracle, zap.NewNop())
	accountant.Reset(accounting.ReportSettings{})

	items := make([]accounting.Item, 0, len(events))
	for _, e := range events {
		items = append(items, e)
	}
	accountant.ProcessAll(items)

	processed := pot.Processed()
	require.Len(t, processed, 2)
	assert.Equal(t, "spend", processed[0].Kind)
	assert.Equal(t, asset(tknAddr), processed[0].Asset)
	assert.Equal(t, "2", processed[0].Amount)
	assert.Equal(t, "acquisition", processed[1].Kind)
	assert.Equal(t, asset(usdxAddr), processed[1].Asset)
	assert.Equal(t, "5", processed[1].Amount)
}

func v3SwapReceipt(t *testing.T) model.EvmTxReceipt {
	return receipt(
		transferLog(t, 0, usdxAddr, poolAddr, userAddr, units(5, 6)),
		transferLog(t, 1, tknAddr, userAddr, poolAddr, units(2, 18)),
		eventLog(t, 2, poolAddr, v3PoolABI, "Swap", []common.Hash{addressTopic(v2Router), addressTopic(userAddr)},
			units(2, 18), big.NewInt(-5000000), big.NewInt(1), big.NewInt(1), big.NewInt(0)),
	)
}

func TestUniswapV3SwapUsesPoolTokens(t *testing.T) {
	caller := &poolCaller{token0: tknAddr, token1: usdxAddr}
	registry := buildRegistry(t, decoding.PluginDeps{Caller: caller}, NewUniswapV3)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(v2Router), v3SwapReceipt(t))
	require.Len(t, events, 2)
	assert.Equal(t, model.EventSubtypeSpend, events[0].EventSubtype)
	assert.Equal(t, asset(tknAddr), events[0].Asset)
	assert.Equal(t, model.EventSubtypeReceive, events[1].EventSubtype)
	assert.Equal(t, CounterpartyUniswapV3, events[1].Counterparty)
	assert.Equal(t, 3, caller.calls)

	decodeTx(t, engine, testTx(v2Router), v3SwapReceipt(t))
	assert.Equal(t, 3, caller.calls, "pool metadata is cached")
}

func TestUniswapV3SkipsNonPool(t *testing.T) {
	caller := &poolCaller{err: revertError{}}
	registry := buildRegistry(t, decoding.PluginDeps{Caller: caller}, NewUniswapV3)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(v2Router), v3SwapReceipt(t))
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Empty(t, e.Counterparty)
		assert.NotEqual(t, model.EventTypeTrade, e.EventType)
	}
}

func TestUniswapV3RemoteFailureAborts(t *testing.T) {
	caller := &poolCaller{err: errors.New("dial tcp: connection refused")}
	registry := buildRegistry(t, decoding.PluginDeps{Caller: caller}, NewUniswapV3)
	engine := newEngine(t, registry)

	_, err := engine.DecodeTransaction(context.Background(), testTx(v2Router), v3SwapReceipt(t))
	assert.True(t, errors.Is(err, decoding.ErrRemote))
}

func TestAirdropClaim(t *testing.T) {
	registry := buildRegistry(t, decoding.PluginDeps{}, NewAirdrops)
	engine := newEngine(t, registry)

	events := decodeTx(t, engine, testTx(uniDropper), receipt(
		transferLog(t, 0, uniAddr, uniDropper, userAddr, units(400, 18)),
	))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSubtypeAirdrop, events[0].EventSubtype)
	assert.Equal(t, "uniswap", events[0].Counterparty)
	assert.Equal(t, "Claim 400 UNI from Uniswap airdrop", events[0].Notes)

	settings := accounting.NewSettingsRegistry(zap.NewNop(), registry)
	settings.Reset(accounting.ReportSettings{TaxableAirdrops: true})
	got, ok := settings.Lookup(events[0])
	require.True(t, ok)
	assert.True(t, got.Taxable)
}

func TestBuildRegistryPerChain(t *testing.T) {
	for chainID := range constructors {
		registry, err := BuildRegistry(chainID, decoding.PluginDeps{Tokens: testTokens(), Logger: zap.NewNop()})
		require.NoError(t, err, "chain %d", chainID)
		assert.Len(t, registry.Plugins(), len(constructors[chainID]))
	}

	registry, err := BuildRegistry(model.ChainEthereum, decoding.PluginDeps{Tokens: testTokens()})
	require.NoError(t, err)
	cpt, ok := registry.CounterpartyForAddress(pDaiJar)
	assert.True(t, ok)
	assert.Equal(t, CounterpartyPickle, cpt)
	cpt, _ = registry.CounterpartyForAddress(v2Router)
	assert.Equal(t, CounterpartyUniswapV2, cpt)
}
