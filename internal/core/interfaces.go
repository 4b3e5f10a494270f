package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidOperation is returned when a batch is requested with parameters
// that cannot be executed.
var ErrInvalidOperation = errors.New("invalid operation")

// BatchError reports a failure to even begin enumerating a wallet source.
type BatchError struct {
	Source string
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to open wallet source %s: %v", e.Source, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ChainClient defines the chain reads and writes the batch engine consumes.
// Address derivation and instruction building are pure and live alongside the
// implementation instead of on this interface.
type ChainClient interface {
	// NativeBalance returns the lamport balance of address.
	NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	// TokenBalance returns the raw token amount held by a token account.
	// It fails if the account does not exist.
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	// AccountExists reports whether address holds an account.
	AccountExists(ctx context.Context, address solana.PublicKey) (bool, error)
	// TokenAccountsByOwner lists the SPL token accounts owned by owner.
	TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]solana.PublicKey, error)
	// LatestBlockhash returns a fresh replay-protection reference.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// FeeForMessage returns the fee in lamports the chain charges for msg.
	FeeForMessage(ctx context.Context, msg *solana.Message) (uint64, error)
	// SubmitAndConfirm sends a signed transaction and waits for confirmation.
	SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// WalletSource enumerates wallets. A source that cannot be opened at all
// returns an error; individual unreadable entries are returned as entries
// with Err set.
type WalletSource interface {
	ListWallets(dir string) ([]WalletEntry, error)
}

// Reporter receives every terminal outcome. Implementations must not block
// the caller and must swallow their own failures.
type Reporter interface {
	Record(address string, outcome Outcome)
}
