package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
	"taxScope/internal/storage"
)

// Decode error kinds.
const (
	ErrorKindFetch  = "fetch"
	ErrorKindRemote = "remote"
	ErrorKindDecode = "decode"
)

// ChainSource is the chain data the runner reads.
type ChainSource interface {
	ChainID(ctx context.Context) (model.ChainID, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
	FetchBundle(ctx context.Context, hash common.Hash) (model.TxBundle, error)
}

// Decoder turns a transaction bundle into events.
type Decoder interface {
	DecodeTransaction(ctx context.Context, tx model.EvmTransaction, receipt model.EvmTxReceipt) ([]*model.HistoryEvent, error)
}

// RunConfig holds runtime settings for the sync runner.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Accounts     []common.Address
	BatchSize    uint64
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner finds transactions touching tracked accounts, decodes them and
// writes the events to a sink.
type Runner struct {
	cfg        RunConfig
	chain      ChainSource
	decoder    Decoder
	sink       storage.EventSink
	checkpoint Checkpointer
	backoff    Backoff
	logger     *zap.Logger
	seen       map[common.Hash]struct{}
}

// NewRunner builds a Runner with its dependencies. A nil checkpoint disables
// resuming.
func NewRunner(cfg RunConfig, chainSource ChainSource, decoder Decoder, sink storage.EventSink, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainSource,
		decoder:    decoder,
		sink:       sink,
		checkpoint: checkpoint,
		backoff:    newBackoff(cfg.MaxRetries, cfg.RetryBackoff),
		logger:     logger,
		seen:       make(map[common.Hash]struct{}),
	}
}

// Result is the outcome of decoding a set of transactions.
type Result struct {
	Events []*model.HistoryEvent
	Errors []model.DecodeError
}

// Run executes the sync loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain source is nil")
	}
	if r.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("event sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	window := BlockRange{From: r.cfg.FromBlock, To: r.cfg.ToBlock}
	if window.To == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		window.To = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		var remain bool
		if window, remain = window.resume(last, ok); ok && remain {
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", window.From))
		}
	}

	if window.Len() == 0 {
		r.logger.Info("nothing to sync", zap.Uint64("from", window.From), zap.Uint64("to", window.To))
		return nil
	}

	ranges, err := window.Chunks(r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch account logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterTouchingLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		refs := touchedTransactions(logs, r.seen)
		hashes := make([]common.Hash, len(refs))
		for i, ref := range refs {
			hashes[i] = ref.hash
		}
		result, err := r.decodeAll(ctx, chainID, hashes)
		if err != nil {
			return err
		}
		if err := r.store(ctx, result); err != nil {
			return err
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("transactions", len(hashes)),
			zap.Int("events", len(result.Events)),
			zap.Int("failed", len(result.Errors)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

// DecodeHashes decodes explicit transactions and stores the result.
func (r *Runner) DecodeHashes(ctx context.Context, hashes []common.Hash) (Result, error) {
	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get chain id: %w", err)
	}
	result, err := r.decodeAll(ctx, chainID, hashes)
	if err != nil {
		return Result{}, err
	}
	return result, r.store(ctx, result)
}

func (r *Runner) store(ctx context.Context, result Result) error {
	if err := r.sink.PutEvents(ctx, result.Events); err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	if errSink, ok := r.sink.(storage.ErrorSink); ok {
		if err := errSink.PutDecodeErrors(ctx, result.Errors); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}
	return nil
}

type outcome struct {
	events []*model.HistoryEvent
	err    *model.DecodeError
}

// decodeAll decodes hashes with bounded parallelism. A failing transaction
// is recorded and does not stop the others. Results keep the input order.
func (r *Runner) decodeAll(ctx context.Context, chainID model.ChainID, hashes []common.Hash) (Result, error) {
	outcomes := make([]outcome, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			outcomes[i] = r.decodeOne(gctx, chainID, hash)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result
	for _, o := range outcomes {
		result.Events = append(result.Events, o.events...)
		if o.err != nil {
			result.Errors = append(result.Errors, *o.err)
		}
	}
	return result, nil
}

func (r *Runner) decodeOne(ctx context.Context, chainID model.ChainID, hash common.Hash) outcome {
	logger := r.logger.With(zap.String("tx_hash", hash.Hex()))
	failed := func(kind string, blockNumber uint64, err error) outcome {
		logger.Warn("transaction skipped", zap.String("kind", kind), zap.Error(err))
		return outcome{err: &model.DecodeError{
			ChainID:     chainID,
			BlockNumber: blockNumber,
			TxHash:      hash.Hex(),
			Kind:        kind,
			Error:       err.Error(),
		}}
	}

	var bundle model.TxBundle
	err := r.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		bundle, err = r.chain.FetchBundle(ctx, hash)
		return err
	})
	if err != nil {
		return failed(ErrorKindFetch, 0, err)
	}

	events, err := r.decoder.DecodeTransaction(ctx, bundle.Transaction, bundle.Receipt)
	switch {
	case errors.Is(err, decoding.ErrRemote):
		return failed(ErrorKindRemote, bundle.Transaction.BlockNumber, err)
	case err != nil:
		return failed(ErrorKindDecode, bundle.Transaction.BlockNumber, err)
	}
	logger.Debug("transaction decoded", zap.Int("events", len(events)))
	return outcome{events: events}
}

func (r *Runner) filterTouchingLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var all []types.Log
	for _, topics := range discoveryQueries(r.cfg.Accounts) {
		var logs []types.Log
		err := r.backoff.Do(ctx, func(ctx context.Context) error {
			var err error
			logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, nil, topics)
			if err != nil {
				r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
	}
	return all, nil
}
