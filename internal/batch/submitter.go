package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

// DefaultBackoff is the fixed delay between submission attempts.
const DefaultBackoff = time.Second

// ErrSettled is returned by Submit when a failed attempt is followed by the
// request's Settled check reporting that the intended effect already exists.
var ErrSettled = errors.New("intended account state already present")

// AbandonedError reports a submission that stopped retrying without landing.
type AbandonedError struct {
	Reason   string
	Attempts int
	Err      error
}

func (e *AbandonedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("abandoned after %d attempts: %s", e.Attempts, e.Reason)
	}
	return fmt.Sprintf("abandoned after %d attempts: %s: %v", e.Attempts, e.Reason, e.Err)
}

func (e *AbandonedError) Unwrap() error {
	return e.Err
}

// RetryPolicy bounds the submission loop. The zero values of MaxAttempts and
// Deadline mean unbounded: the loop retries until the transaction lands or the
// caller's context ends.
type RetryPolicy struct {
	Backoff     time.Duration
	MaxAttempts int
	Deadline    time.Duration
}

// DefaultRetryPolicy retries forever with a one second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: DefaultBackoff}
}

// Request is one instruction submission.
type Request struct {
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
	Payer        solana.PublicKey
	// Owner is the wallet the submission is made for; it is only used in logs.
	Owner solana.PublicKey
	// Settled, when set, is asked after every failed attempt whether the
	// intended effect is already on chain.
	Settled func(ctx context.Context, err error) bool
}

// Submitter signs and submits transactions, retrying with a fixed backoff and
// a fresh blockhash on every attempt.
type Submitter struct {
	chain  core.ChainClient
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSubmitter creates a Submitter.
func NewSubmitter(chain core.ChainClient, policy RetryPolicy) *Submitter {
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultBackoff
	}
	return &Submitter{
		chain:  chain,
		policy: policy,
		sleep:  sleepContext,
	}
}

// Policy returns the retry policy in effect.
func (s *Submitter) Policy() RetryPolicy {
	return s.policy
}

// Submit runs the build, sign, submit and confirm cycle until it lands.
func (s *Submitter) Submit(ctx context.Context, req Request) (solana.Signature, error) {
	if len(req.Instructions) == 0 {
		return solana.Signature{}, &AbandonedError{Reason: "no instructions"}
	}
	if s.policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.Deadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return solana.Signature{}, abandonedByContext(ctx, attempt-1, lastErr)
		}

		sig, err := s.attempt(ctx, req)
		if err == nil {
			if attempt > 1 {
				logger.Debug("Transaction for %s landed on attempt %d", req.Owner, attempt)
			}
			return sig, nil
		}

		var buildErr *buildError
		if errors.As(err, &buildErr) {
			return solana.Signature{}, &AbandonedError{Reason: "transaction build failed", Attempts: attempt, Err: buildErr.err}
		}

		lastErr = err
		logger.Error("Failed to land %s transaction (attempt %d), waiting for retry: %v", req.Owner, attempt, err)

		if req.Settled != nil && req.Settled(ctx, err) {
			return solana.Signature{}, ErrSettled
		}
		if s.policy.MaxAttempts > 0 && attempt >= s.policy.MaxAttempts {
			return solana.Signature{}, &AbandonedError{Reason: "retries exhausted", Attempts: attempt, Err: err}
		}
		if err := s.sleep(ctx, s.policy.Backoff); err != nil {
			return solana.Signature{}, abandonedByContext(ctx, attempt, lastErr)
		}
	}
}

// buildError marks failures that no retry can fix.
type buildError struct {
	err error
}

func (e *buildError) Error() string {
	return e.err.Error()
}

func (s *Submitter) attempt(ctx context.Context, req Request) (solana.Signature, error) {
	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(req.Instructions, blockhash, solana.TransactionPayer(req.Payer))
	if err != nil {
		return solana.Signature{}, &buildError{err: fmt.Errorf("failed to create transaction: %w", err)}
	}
	if _, err := tx.Sign(signerLookup(req.Signers)); err != nil {
		return solana.Signature{}, &buildError{err: fmt.Errorf("failed to sign transaction: %w", err)}
	}

	return s.chain.SubmitAndConfirm(ctx, tx)
}

func signerLookup(signers []solana.PrivateKey) func(key solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}
}

func abandonedByContext(ctx context.Context, attempts int, lastErr error) *AbandonedError {
	reason := ReasonCancelled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &AbandonedError{Reason: reason, Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
