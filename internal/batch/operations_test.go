package batch

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/solfleet/internal/core"
	chain "github.com/hunterwarburton/solfleet/internal/solana"
)

func TestDistributeTokenProvisionsMissingAccounts(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	fc.addTokenAccount(t, main.Address(), mint, 1_000_000)
	entries := newTestEntries(t, 3)
	fc.addTokenAccount(t, entries[0].Wallet.Address(), mint, 0)

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.Distribute(250), core.Token(mint, 6), main)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Landed)
	assert.Equal(t, 2, fc.creates)
	assert.Equal(t, 3, fc.transfers)
}

func TestProvisioningRaceCountsAsSuccess(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	fc.addTokenAccount(t, main.Address(), mint, 1_000_000)
	entries := newTestEntries(t, 1)
	ata := fc.addTokenAccount(t, entries[0].Wallet.Address(), mint, 0)
	// The first existence check misses the account, so the create collides.
	fc.hidden[ata] = true

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.Distribute(250), core.Token(mint, 6), main)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Landed)
	assert.Equal(t, 0, fc.creates)
	assert.Equal(t, 1, fc.transfers)
	assert.Equal(t, 2, fc.submitCount(main.Address()))
}

func TestEnsureTokenAccountIsIdempotent(t *testing.T) {
	fc := newFakeChain()
	payer := newTestWallet(t)
	owner := newTestWallet(t).Address()
	mint := newTestWallet(t).Address()
	g := NewGuard(fc, NewSubmitter(fc, testOptions().Retry))

	first, err := g.EnsureTokenAccount(context.Background(), payer, owner, mint)
	require.NoError(t, err)
	second, err := g.EnsureTokenAccount(context.Background(), payer, owner, mint)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fc.creates)
}

func TestCollectNative(t *testing.T) {
	fc := newFakeChain()
	entries := newTestEntries(t, 3)
	fc.native[entries[0].Wallet.Address()] = 1_000_000
	fc.native[entries[1].Wallet.Address()] = 3000
	main := newTestWallet(t)

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.Collect(), core.Native(), main)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Landed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, uint64(1_000_000-5000), summary.Outcomes[0].Outcome.Amount)
	assert.Contains(t, summary.Outcomes[1].Outcome.Reason, "does not cover fee")
	assert.Equal(t, "no native balance", summary.Outcomes[2].Outcome.Reason)
	assert.Equal(t, 0, fc.submitCount(main.Address()))
}

func TestCollectToken(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	entries := newTestEntries(t, 3)
	fc.addTokenAccount(t, entries[0].Wallet.Address(), mint, 900)
	fc.addTokenAccount(t, entries[1].Wallet.Address(), mint, 0)

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.Collect(), core.Token(mint, 9), main)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Landed)
	assert.Equal(t, uint64(900), summary.Outcomes[0].Outcome.Amount)
	assert.Equal(t, "no token balance", summary.Outcomes[1].Outcome.Reason)
	assert.Contains(t, summary.Outcomes[2].Outcome.Reason, "does not exist")
	// Only the wallet with a balance provisions the main account.
	assert.Equal(t, 1, fc.creates)
}

func TestCloseIfEmptyIsIdempotent(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	entries := newTestEntries(t, 2)
	fc.addTokenAccount(t, entries[0].Wallet.Address(), mint, 0)
	fc.addTokenAccount(t, entries[1].Wallet.Address(), mint, 17)
	o := NewOrchestrator(fc, nil, testOptions())

	first, err := o.Run(context.Background(), entries, core.CloseIfEmpty(), core.Token(mint, 6), main)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeLanded, first.Outcomes[0].Outcome.Kind)
	assert.Equal(t, core.OutcomeSkipped, first.Outcomes[1].Outcome.Kind)
	assert.Contains(t, first.Outcomes[1].Outcome.Reason, "holds 17")

	second, err := o.Run(context.Background(), entries, core.CloseIfEmpty(), core.Token(mint, 6), main)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Landed)
	assert.Contains(t, second.Outcomes[0].Outcome.Reason, "does not exist")

	assert.Equal(t, 1, fc.closes)
}

func TestCloseAllEmptyAccounts(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	entries := newTestEntries(t, 2)
	owner := entries[0].Wallet.Address()
	for i := 0; i < closeChunk+2; i++ {
		fc.addTokenAccount(t, owner, newTestWallet(t).Address(), 0)
	}
	fc.addTokenAccount(t, owner, newTestWallet(t).Address(), 5)

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.CloseIfEmpty(), core.Native(), main)
	require.NoError(t, err)

	out := summary.Outcomes[0].Outcome
	assert.Equal(t, core.OutcomeLanded, out.Kind)
	assert.Equal(t, "closed 10 token accounts", out.Reason)
	assert.Equal(t, closeChunk+2, fc.closes)
	assert.Equal(t, 2, fc.submitCount(main.Address()))
	assert.Equal(t, "no token accounts", summary.Outcomes[1].Outcome.Reason)

	remaining, err := fc.TokenAccountsByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSubmitStopsWhenSettled(t *testing.T) {
	fc := newFakeChain()
	payer := newTestWallet(t)
	fc.failAlways[payer.Address()] = true
	s := NewSubmitter(fc, RetryPolicy{Backoff: DefaultBackoff})

	_, err := s.Submit(context.Background(), Request{
		Instructions: []solana.Instruction{newTransfer(payer)},
		Signers:      []solana.PrivateKey{payer.Key},
		Payer:        payer.Address(),
		Settled:      func(context.Context, error) bool { return true },
	})
	assert.ErrorIs(t, err, ErrSettled)
	assert.Equal(t, 1, fc.submitCount(payer.Address()))
}

func TestSubmitAbandonsWithoutSigner(t *testing.T) {
	fc := newFakeChain()
	payer := newTestWallet(t)
	s := NewSubmitter(fc, DefaultRetryPolicy())

	_, err := s.Submit(context.Background(), Request{
		Instructions: []solana.Instruction{newTransfer(payer)},
		Payer:        payer.Address(),
	})
	var abandoned *AbandonedError
	require.ErrorAs(t, err, &abandoned)
	assert.Equal(t, "transaction build failed", abandoned.Reason)
	assert.Equal(t, 0, fc.submitCount(payer.Address()))
}

func newTransfer(from *core.Wallet) solana.Instruction {
	to := solana.NewWallet().PublicKey()
	return chain.TransferNative(from.Address(), to, 1)
}

func TestCloseLandedButUnconfirmed(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	entries := newTestEntries(t, 1)
	fc.addTokenAccount(t, entries[0].Wallet.Address(), mint, 0)
	fc.unconfirmed[main.Address()] = 1
	opts := testOptions()
	opts.Retry.MaxAttempts = 3

	summary, err := NewOrchestrator(fc, nil, opts).
		Run(context.Background(), entries, core.CloseIfEmpty(), core.Token(mint, 6), main)
	require.NoError(t, err)

	out := summary.Outcomes[0].Outcome
	assert.Equal(t, core.OutcomeLanded, out.Kind)
	assert.Equal(t, ReasonAlreadyApplied, out.Reason)
	assert.False(t, out.HasSignature())
	assert.Equal(t, 1, fc.closes)
	assert.Equal(t, 1, fc.submitCount(main.Address()))
}

func TestCloseAllContinuesAfterUnconfirmedChunk(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	entries := newTestEntries(t, 1)
	owner := entries[0].Wallet.Address()
	for i := 0; i < closeChunk+2; i++ {
		fc.addTokenAccount(t, owner, newTestWallet(t).Address(), 0)
	}
	fc.unconfirmed[main.Address()] = 1

	summary, err := NewOrchestrator(fc, nil, testOptions()).
		Run(context.Background(), entries, core.CloseIfEmpty(), core.Native(), main)
	require.NoError(t, err)

	out := summary.Outcomes[0].Outcome
	assert.Equal(t, core.OutcomeLanded, out.Kind)
	assert.True(t, out.HasSignature())
	assert.Equal(t, "closed 10 token accounts", out.Reason)
	assert.Equal(t, closeChunk+2, fc.closes)
	assert.Equal(t, 2, fc.submitCount(main.Address()))
}

func TestCollectNativeLandedButUnconfirmed(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	entries := newTestEntries(t, 1)
	sub := entries[0].Wallet.Address()
	fc.native[sub] = 1_000_000
	fc.unconfirmed[sub] = 1
	opts := testOptions()
	opts.Retry.MaxAttempts = 3

	summary, err := NewOrchestrator(fc, nil, opts).
		Run(context.Background(), entries, core.Collect(), core.Native(), main)
	require.NoError(t, err)

	out := summary.Outcomes[0].Outcome
	assert.Equal(t, core.OutcomeLanded, out.Kind)
	assert.Equal(t, ReasonAlreadyApplied, out.Reason)
	assert.Equal(t, uint64(1_000_000-5000), out.Amount)
	assert.Equal(t, 1, fc.submitCount(sub))
	assert.Equal(t, uint64(1_000_000-5000), fc.native[main.Address()])
}

func TestCollectTokenLandedButUnconfirmed(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	mint := newTestWallet(t).Address()
	entries := newTestEntries(t, 1)
	sub := entries[0].Wallet.Address()
	fc.addTokenAccount(t, sub, mint, 900)
	dest := fc.addTokenAccount(t, main.Address(), mint, 0)
	fc.unconfirmed[sub] = 1
	opts := testOptions()
	opts.Retry.MaxAttempts = 3

	summary, err := NewOrchestrator(fc, nil, opts).
		Run(context.Background(), entries, core.Collect(), core.Token(mint, 9), main)
	require.NoError(t, err)

	out := summary.Outcomes[0].Outcome
	assert.Equal(t, core.OutcomeLanded, out.Kind)
	assert.Equal(t, ReasonAlreadyApplied, out.Reason)
	assert.Equal(t, uint64(900), out.Amount)
	assert.Equal(t, 1, fc.submitCount(sub))
	assert.Equal(t, uint64(900), fc.tokens[dest])
}

func TestSubmitDeadlineAbandons(t *testing.T) {
	fc := newFakeChain()
	payer := newTestWallet(t)
	fc.failAlways[payer.Address()] = true
	s := NewSubmitter(fc, RetryPolicy{Backoff: 10 * time.Millisecond, Deadline: 40 * time.Millisecond})

	_, err := s.Submit(context.Background(), Request{
		Instructions: []solana.Instruction{newTransfer(payer)},
		Signers:      []solana.PrivateKey{payer.Key},
		Payer:        payer.Address(),
	})
	var abandoned *AbandonedError
	require.ErrorAs(t, err, &abandoned)
	assert.Equal(t, ReasonTimeout, abandoned.Reason)
	assert.GreaterOrEqual(t, fc.submitCount(payer.Address()), 2)
}

func TestSubmitDeadlineBecomesTimeoutOutcome(t *testing.T) {
	fc := newFakeChain()
	main := newTestWallet(t)
	fc.failAlways[main.Address()] = true
	opts := testOptions()
	opts.Retry.Deadline = 40 * time.Millisecond

	summary, err := NewOrchestrator(fc, nil, opts).
		Run(context.Background(), newTestEntries(t, 2), core.Distribute(10), core.Native(), main)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Abandoned)
	for _, wo := range summary.Outcomes {
		assert.Equal(t, core.Abandoned(ReasonTimeout), wo.Outcome)
	}
}
