package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taxScope/internal/chain"
	"taxScope/internal/config"
	"taxScope/internal/decoding"
	"taxScope/internal/decoding/protocols"
	"taxScope/internal/indexer"
	"taxScope/internal/model"
	"taxScope/internal/storage"
	"taxScope/internal/storage/natssink"
	"taxScope/internal/storage/postgres"
)

// pipeline holds everything a decoding command needs.
type pipeline struct {
	chain   *chain.Client
	chainID model.ChainID
	engine  *decoding.Engine
	sink    storage.MultiSink
	db      *postgres.Store
	closers []func()
}

func newPipeline(ctx context.Context, chainCfg config.ChainConfig, sinkCfg config.SinkConfig, logger *zap.Logger) (_ *pipeline, err error) {
	p := &pipeline{}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	chainClient, err := chain.NewClient(ctx, chainCfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	p.chain = chainClient
	p.closers = append(p.closers, chainClient.Close)

	p.chainID, err = chainClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if chainCfg.ChainID != 0 && model.ChainID(chainCfg.ChainID) != p.chainID {
		return nil, fmt.Errorf("node serves chain %d, configured %d", p.chainID, chainCfg.ChainID)
	}

	accounts, err := indexer.ParseAddresses(chainCfg.Accounts)
	if err != nil {
		return nil, err
	}
	exchanges, err := indexer.ParseExchanges(chainCfg.Exchanges)
	if err != nil {
		return nil, err
	}

	deps := decoding.PluginDeps{
		Tokens: decoding.NewChainTokenResolver(p.chainID, chainClient, nil, logger),
		Caller: chainClient,
		Logger: logger,
	}
	if chainCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: chainCfg.RedisAddr})
		p.closers = append(p.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.Redis = rdb
	}

	registry, err := protocols.BuildRegistry(p.chainID, deps)
	if err != nil {
		return nil, err
	}
	added := registry.ReloadAll(ctx)

	p.engine, err = decoding.NewEngine(decoding.EngineConfig{
		Registry:  registry,
		Tokens:    deps.Tokens,
		Accounts:  decoding.NewTrackedAccounts(accounts...),
		Exchanges: exchanges,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	if sinkCfg.Output != "" {
		p.sink = append(p.sink, storage.NewJsonlStorage(sinkCfg.Output))
	}
	if sinkCfg.DBDSN != "" {
		store, err := postgres.NewStore(ctx, sinkCfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p.closers = append(p.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		p.db = store
		p.sink = append(p.sink, store)
	}
	if sinkCfg.NATSURL != "" {
		publisher, err := natssink.Connect(sinkCfg.NATSURL, sinkCfg.NATSSubject, logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, publisher.Close)
		p.sink = append(p.sink, publisher)
	}
	if len(p.sink) == 0 {
		return nil, fmt.Errorf("no event sink configured")
	}

	logger.Info("pipeline ready",
		zap.Uint64("chain_id", uint64(p.chainID)),
		zap.Int("accounts", len(accounts)),
		zap.Int("exchanges", len(exchanges)),
		zap.Int("plugins", len(registry.Plugins())),
		zap.Int("reloaded_rules", added),
		zap.Int("sinks", len(p.sink)),
	)
	return p, nil
}

// Close releases resources in reverse order of acquisition.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
