package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
	chain "github.com/hunterwarburton/solfleet/internal/solana"
)

// closeChunk is how many close instructions share one transaction when a
// wallet's token accounts are closed regardless of mint.
const closeChunk = 8

// ReasonAlreadyApplied marks a landed outcome whose effect was found on chain
// after an attempt that could not be confirmed. Its signature is unknown.
const ReasonAlreadyApplied = "already applied"

func alreadyApplied(amount uint64) core.Outcome {
	return core.Outcome{Kind: core.OutcomeLanded, Reason: ReasonAlreadyApplied, Amount: amount}
}

// distribute sends the configured amount from main to the item's wallet.
// Main signs and pays.
func (o *Orchestrator) distribute(ctx context.Context, item core.WorkItem, main *core.Wallet) (core.Outcome, error) {
	sub := item.Wallet.Address()
	amount := item.Operation.Amount

	var ix solana.Instruction
	if !item.Asset.IsToken() {
		ix = chain.TransferNative(main.Address(), sub, amount)
	} else {
		mint := item.Asset.Mint
		dest, err := o.guard.EnsureTokenAccount(ctx, main, sub, mint)
		if err != nil {
			return core.Outcome{}, err
		}
		src, err := chain.TokenAccountAddress(main.Address(), mint)
		if err != nil {
			return core.Outcome{}, err
		}
		ix, err = chain.TransferTokenChecked(src, mint, dest, main.Address(), amount, item.Asset.Decimals)
		if err != nil {
			return core.Outcome{}, err
		}
	}

	sig, err := o.submitter.Submit(ctx, Request{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PrivateKey{main.Key},
		Payer:        main.Address(),
		Owner:        sub,
	})
	if err != nil {
		return core.Outcome{}, err
	}

	logger.Debug("Transferred %d %s from %s to %s: %s", amount, item.Asset, main.Address(), sub, sig)
	out := core.Landed(sig)
	out.Amount = amount
	return out, nil
}

// collect sweeps the item's wallet into main. The sub wallet is the sender
// and pays its own fee.
func (o *Orchestrator) collect(ctx context.Context, item core.WorkItem, main *core.Wallet) (core.Outcome, error) {
	if item.Asset.IsToken() {
		return o.collectToken(ctx, item, main)
	}

	sub := item.Wallet
	balance, err := o.chain.NativeBalance(ctx, sub.Address())
	if err != nil {
		return core.Outcome{}, err
	}
	if balance == 0 {
		return core.Skipped("no native balance"), nil
	}

	fee, err := o.sweepFee(ctx, sub, main.Address(), balance)
	if err != nil {
		return core.Outcome{}, err
	}
	if balance <= fee {
		return core.Skipped(fmt.Sprintf("balance %d does not cover fee %d", balance, fee)), nil
	}
	amount := balance - fee

	sig, err := o.submitter.Submit(ctx, Request{
		Instructions: []solana.Instruction{chain.TransferNative(sub.Address(), main.Address(), amount)},
		Signers:      []solana.PrivateKey{sub.Key},
		Payer:        sub.Address(),
		Owner:        sub.Address(),
		Settled:      o.nativeBelow(sub.Address(), amount),
	})
	if errors.Is(err, ErrSettled) {
		return alreadyApplied(amount), nil
	}
	if err != nil {
		return core.Outcome{}, err
	}

	out := core.Landed(sig)
	out.Amount = amount
	return out, nil
}

// nativeBelow reports a sweep of amount as settled once the sender's balance
// no longer covers it.
func (o *Orchestrator) nativeBelow(address solana.PublicKey, amount uint64) func(ctx context.Context, err error) bool {
	return func(ctx context.Context, _ error) bool {
		balance, err := o.chain.NativeBalance(ctx, address)
		if err != nil {
			logger.Debug("Balance re-check of %s failed: %v", address, err)
			return false
		}
		return balance < amount
	}
}

func (o *Orchestrator) tokenBelow(tokenAccount solana.PublicKey, amount uint64) func(ctx context.Context, err error) bool {
	return func(ctx context.Context, _ error) bool {
		balance, err := o.chain.TokenBalance(ctx, tokenAccount)
		if err != nil {
			logger.Debug("Token balance re-check of %s failed: %v", tokenAccount, err)
			return false
		}
		return balance < amount
	}
}

// allClosed reports a close as settled once none of the accounts exist.
func (o *Orchestrator) allClosed(accounts []solana.PublicKey) func(ctx context.Context, err error) bool {
	return func(ctx context.Context, _ error) bool {
		for _, acct := range accounts {
			exists, err := o.chain.AccountExists(ctx, acct)
			if err != nil || exists {
				return false
			}
		}
		return true
	}
}

// sweepFee prices a transfer of the full balance paid by sub.
func (o *Orchestrator) sweepFee(ctx context.Context, sub *core.Wallet, to solana.PublicKey, balance uint64) (uint64, error) {
	blockhash, err := o.chain.LatestBlockhash(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{chain.TransferNative(sub.Address(), to, balance)},
		blockhash,
		solana.TransactionPayer(sub.Address()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build fee probe: %w", err)
	}
	return o.chain.FeeForMessage(ctx, &tx.Message)
}

func (o *Orchestrator) collectToken(ctx context.Context, item core.WorkItem, main *core.Wallet) (core.Outcome, error) {
	sub := item.Wallet
	mint := item.Asset.Mint

	src, err := chain.TokenAccountAddress(sub.Address(), mint)
	if err != nil {
		return core.Outcome{}, err
	}
	exists, err := o.chain.AccountExists(ctx, src)
	if err != nil {
		return core.Outcome{}, err
	}
	if !exists {
		return core.Skipped(fmt.Sprintf("token account %s does not exist", src)), nil
	}
	balance, err := o.chain.TokenBalance(ctx, src)
	if err != nil {
		return core.Outcome{}, err
	}
	if balance == 0 {
		return core.Skipped("no token balance"), nil
	}

	dest, err := o.guard.EnsureTokenAccount(ctx, sub, main.Address(), mint)
	if err != nil {
		return core.Outcome{}, err
	}
	ix, err := chain.TransferTokenChecked(src, mint, dest, sub.Address(), balance, item.Asset.Decimals)
	if err != nil {
		return core.Outcome{}, err
	}

	sig, err := o.submitter.Submit(ctx, Request{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PrivateKey{sub.Key},
		Payer:        sub.Address(),
		Owner:        sub.Address(),
		Settled:      o.tokenBelow(src, balance),
	})
	if errors.Is(err, ErrSettled) {
		return alreadyApplied(balance), nil
	}
	if err != nil {
		return core.Outcome{}, err
	}

	out := core.Landed(sig)
	out.Amount = balance
	return out, nil
}

// closeEmpty closes the item's empty token account for the asset's mint, or
// every empty token account of the wallet when the asset is native. Rent goes
// back to the sub wallet; main pays the fee and co-signs.
func (o *Orchestrator) closeEmpty(ctx context.Context, item core.WorkItem, main *core.Wallet) (core.Outcome, error) {
	sub := item.Wallet

	var candidates []solana.PublicKey
	if item.Asset.IsToken() {
		acct, err := chain.TokenAccountAddress(sub.Address(), item.Asset.Mint)
		if err != nil {
			return core.Outcome{}, err
		}
		candidates = []solana.PublicKey{acct}
	} else {
		owned, err := o.chain.TokenAccountsByOwner(ctx, sub.Address())
		if err != nil {
			return core.Outcome{}, err
		}
		if len(owned) == 0 {
			return core.Skipped("no token accounts"), nil
		}
		candidates = owned
	}

	var ixs []solana.Instruction
	var closing []solana.PublicKey
	var lastReason string
	for _, acct := range candidates {
		ok, reason := o.guard.Closable(ctx, acct)
		if !ok {
			logger.Debug("Not closing %s: %s", acct, reason)
			lastReason = reason
			continue
		}
		ix, err := chain.CloseTokenAccount(acct, sub.Address(), sub.Address())
		if err != nil {
			return core.Outcome{}, err
		}
		ixs = append(ixs, ix)
		closing = append(closing, acct)
	}
	if len(ixs) == 0 {
		if len(candidates) > 1 {
			return core.Skipped("no empty token accounts"), nil
		}
		return core.Skipped(lastReason), nil
	}

	var sig solana.Signature
	for start := 0; start < len(ixs); start += closeChunk {
		end := min(start+closeChunk, len(ixs))
		chunkSig, err := o.submitter.Submit(ctx, Request{
			Instructions: ixs[start:end],
			Signers:      []solana.PrivateKey{sub.Key, main.Key},
			Payer:        main.Address(),
			Owner:        sub.Address(),
			Settled:      o.allClosed(closing[start:end]),
		})
		if errors.Is(err, ErrSettled) {
			logger.Info("Token accounts of %s were already closed", sub.Address())
			continue
		}
		if err != nil {
			return core.Outcome{}, err
		}
		sig = chunkSig
	}

	if sig == (solana.Signature{}) {
		return alreadyApplied(0), nil
	}
	out := core.Landed(sig)
	if len(ixs) > 1 {
		out.Reason = fmt.Sprintf("closed %d token accounts", len(ixs))
	}
	return out, nil
}

// queryBalance adds the item's balance to the batch total.
func (o *Orchestrator) queryBalance(ctx context.Context, item core.WorkItem, agg *Aggregator) (core.Outcome, error) {
	address := item.Wallet.Address()

	var balance uint64
	if !item.Asset.IsToken() {
		var err error
		balance, err = o.chain.NativeBalance(ctx, address)
		if err != nil {
			return core.Outcome{}, err
		}
	} else {
		acct, err := chain.TokenAccountAddress(address, item.Asset.Mint)
		if err != nil {
			return core.Outcome{}, err
		}
		exists, err := o.chain.AccountExists(ctx, acct)
		if err != nil {
			return core.Outcome{}, err
		}
		if !exists {
			return core.Skipped(fmt.Sprintf("token account %s does not exist", acct)), nil
		}
		balance, err = o.chain.TokenBalance(ctx, acct)
		if err != nil {
			return core.Outcome{}, err
		}
	}

	agg.Add(balance)
	return core.Outcome{Kind: core.OutcomeLanded, Amount: balance}, nil
}
