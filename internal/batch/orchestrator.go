package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

const (
	// DefaultConcurrency is the number of work items allowed in flight at once.
	DefaultConcurrency = 20
	// DefaultThrottle is the pause a worker takes before releasing its permit,
	// keeping the batch under the RPC endpoint's request ceiling.
	DefaultThrottle = 50 * time.Millisecond
)

// Abandonment reasons shared across the package.
const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonInternal  = "internal failure"
)

// Options configures an Orchestrator.
type Options struct {
	Concurrency int
	Throttle    time.Duration
	// ItemTimeout bounds the whole processing of one work item. Zero means no bound.
	ItemTimeout time.Duration
	Retry       RetryPolicy
}

// DefaultOptions returns the baseline configuration: 20 permits, 50ms
// throttle, no per-item deadline and unbounded retries.
func DefaultOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		Throttle:    DefaultThrottle,
		Retry:       DefaultRetryPolicy(),
	}
}

// Orchestrator fans a per-wallet operation out over a bounded set of workers.
type Orchestrator struct {
	chain     core.ChainClient
	submitter *Submitter
	guard     *Guard
	reporter  core.Reporter
	opts      Options
}

// NewOrchestrator creates an Orchestrator. reporter may be nil.
func NewOrchestrator(client core.ChainClient, reporter core.Reporter, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	submitter := NewSubmitter(client, opts.Retry)
	return &Orchestrator{
		chain:     client,
		submitter: submitter,
		guard:     NewGuard(client, submitter),
		reporter:  reporter,
		opts:      opts,
	}
}

// RunSource enumerates dir through src and runs the batch over the result.
// Failing to open the source is returned as a *core.BatchError.
func (o *Orchestrator) RunSource(ctx context.Context, src core.WalletSource, dir string, op core.Operation, asset core.Asset, main *core.Wallet) (*core.BatchSummary, error) {
	if err := op.Validate(asset, main); err != nil {
		return nil, err
	}
	entries, err := src.ListWallets(dir)
	if err != nil {
		return nil, &core.BatchError{Source: dir, Err: err}
	}
	return o.Run(ctx, entries, op, asset, main)
}

// Run applies op to every entry and returns once every worker has finished.
// Each entry yields exactly one outcome in the summary.
func (o *Orchestrator) Run(ctx context.Context, entries []core.WalletEntry, op core.Operation, asset core.Asset, main *core.Wallet) (*core.BatchSummary, error) {
	if err := op.Validate(asset, main); err != nil {
		return nil, err
	}

	started := time.Now()
	logger.Info("Starting %s of %s over %d wallets (concurrency %d)", op, asset, len(entries), o.opts.Concurrency)

	agg := &Aggregator{}
	results := make([]core.WalletOutcome, len(entries))
	permits := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup

	for i, entry := range entries {
		if entry.Err != nil || entry.Wallet == nil {
			reason := "unreadable wallet"
			if entry.Err != nil {
				reason = fmt.Sprintf("unreadable wallet: %v", entry.Err)
			}
			logger.Error("Can not read the keypair from %s: %v", entry.Path, entry.Err)
			results[i] = core.WalletOutcome{Path: entry.Path, Outcome: core.Skipped(reason)}
			o.record(results[i])
			continue
		}

		item := core.WorkItem{Wallet: entry.Wallet, Operation: op, Asset: asset}
		wg.Add(1)
		go func(i int, item core.WorkItem) {
			defer wg.Done()
			results[i] = o.work(ctx, permits, item, main, agg)
			o.record(results[i])
		}(i, item)
	}

	wg.Wait()

	summary := &core.BatchSummary{
		Operation: op,
		Asset:     asset,
		Started:   started,
		Outcomes:  make([]core.WalletOutcome, 0, len(results)),
	}
	for _, r := range results {
		summary.Add(r)
	}
	summary.Total = agg.Total()
	summary.Elapsed = time.Since(started)

	logger.Info("Finished %s", summary)
	return summary, nil
}

// work holds one permit for the whole chain interaction of item.
func (o *Orchestrator) work(ctx context.Context, permits chan struct{}, item core.WorkItem, main *core.Wallet, agg *Aggregator) core.WalletOutcome {
	result := core.WalletOutcome{
		Address: item.Wallet.Address().String(),
		Path:    item.Wallet.Path,
	}

	select {
	case permits <- struct{}{}:
	case <-ctx.Done():
		result.Outcome = core.Abandoned(ReasonCancelled)
		return result
	}
	defer func() { <-permits }()

	result.Outcome = o.process(ctx, item, main, agg)

	if o.opts.Throttle > 0 {
		_ = sleepContext(ctx, o.opts.Throttle)
	}
	return result
}

// process never panics: a panic inside an operation becomes an abandonment.
func (o *Orchestrator) process(ctx context.Context, item core.WorkItem, main *core.Wallet, agg *Aggregator) (out core.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker for %s panicked: %v", item.Wallet.Address(), r)
			out = core.Abandoned(ReasonInternal)
		}
	}()

	if o.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ItemTimeout)
		defer cancel()
	}

	var err error
	switch item.Operation.Kind {
	case core.OpDistribute:
		out, err = o.distribute(ctx, item, main)
	case core.OpCollect:
		out, err = o.collect(ctx, item, main)
	case core.OpCloseIfEmpty:
		out, err = o.closeEmpty(ctx, item, main)
	case core.OpQueryBalance:
		out, err = o.queryBalance(ctx, item, agg)
	default:
		err = fmt.Errorf("%w: %s", core.ErrInvalidOperation, item.Operation)
	}
	if err != nil {
		return abandonment(ctx, err)
	}
	return out
}

func abandonment(ctx context.Context, err error) core.Outcome {
	var abandoned *AbandonedError
	if errors.As(err, &abandoned) {
		if abandoned.Err != nil && abandoned.Reason != ReasonTimeout && abandoned.Reason != ReasonCancelled {
			return core.Abandoned(fmt.Sprintf("%s: %v", abandoned.Reason, abandoned.Err))
		}
		return core.Abandoned(abandoned.Reason)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return core.Abandoned(ReasonTimeout)
		}
		return core.Abandoned(ReasonCancelled)
	}
	return core.Abandoned(err.Error())
}

func (o *Orchestrator) record(wo core.WalletOutcome) {
	address := wo.Address
	if address == "" {
		address = wo.Path
	}
	safeRecord(o.reporter, address, wo.Outcome)
}
