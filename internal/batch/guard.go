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

// Guard answers the account-state questions asked before an operation is
// attempted and provisions missing token accounts.
type Guard struct {
	chain     core.ChainClient
	submitter *Submitter
}

// NewGuard creates a Guard that provisions through submitter.
func NewGuard(client core.ChainClient, submitter *Submitter) *Guard {
	return &Guard{chain: client, submitter: submitter}
}

// EnsureTokenAccount returns the associated token account of owner for mint,
// creating it at payer's expense when it does not exist yet. A create that is
// rejected because the account appeared in the meantime counts as success.
func (g *Guard) EnsureTokenAccount(ctx context.Context, payer *core.Wallet, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := chain.TokenAccountAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	exists, err := g.chain.AccountExists(ctx, addr)
	if err != nil {
		return addr, fmt.Errorf("failed to check token account %s: %w", addr, err)
	}
	if exists {
		logger.Debug("Token account exists: %s", addr)
		return addr, nil
	}

	logger.Info("Token account %s of %s does not exist, creating it", addr, owner)
	ix, err := chain.CreateTokenAccount(payer.Address(), owner, mint)
	if err != nil {
		return addr, err
	}

	sig, err := g.submitter.Submit(ctx, Request{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PrivateKey{payer.Key},
		Payer:        payer.Address(),
		Owner:        owner,
		Settled:      g.accountPresent(addr),
	})
	if errors.Is(err, ErrSettled) {
		logger.Info("Token account %s of %s was created concurrently", addr, owner)
		return addr, nil
	}
	if err != nil {
		return addr, fmt.Errorf("failed to create token account %s: %w", addr, err)
	}

	logger.Info("Created token account %s for %s: %s", addr, owner, sig)
	return addr, nil
}

func (g *Guard) accountPresent(addr solana.PublicKey) func(ctx context.Context, err error) bool {
	return func(ctx context.Context, _ error) bool {
		exists, err := g.chain.AccountExists(ctx, addr)
		if err != nil {
			logger.Debug("Existence re-check of %s failed: %v", addr, err)
			return false
		}
		return exists
	}
}

// Closable reports whether tokenAccount exists and holds exactly zero tokens.
// When it does not, the returned reason says why.
func (g *Guard) Closable(ctx context.Context, tokenAccount solana.PublicKey) (bool, string) {
	exists, err := g.chain.AccountExists(ctx, tokenAccount)
	if err != nil {
		return false, fmt.Sprintf("token account %s lookup failed: %v", tokenAccount, err)
	}
	if !exists {
		return false, fmt.Sprintf("token account %s does not exist", tokenAccount)
	}

	balance, err := g.chain.TokenBalance(ctx, tokenAccount)
	if err != nil {
		return false, fmt.Sprintf("token account %s balance unavailable: %v", tokenAccount, err)
	}
	if balance != 0 {
		return false, fmt.Sprintf("token account %s holds %d", tokenAccount, balance)
	}
	return true, ""
}
