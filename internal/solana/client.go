package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/hunterwarburton/solfleet/internal/logger"
)

// DefaultMainnetEndpoint is the public RPC endpoint for Solana mainnet-beta.
const DefaultMainnetEndpoint = "https://api.mainnet-beta.solana.com/"

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	// Endpoint is the RPC URL. Empty means DefaultMainnetEndpoint.
	Endpoint string
	// RequestsPerSecond caps outgoing RPC calls. Zero or negative disables the cap.
	RequestsPerSecond float64
	// ConfirmTimeout bounds how long SubmitAndConfirm waits for confirmation.
	ConfirmTimeout time.Duration
	// PollInterval is the delay between signature status polls.
	PollInterval time.Duration
	// CacheDir holds the token metadata disk cache. Empty disables it.
	CacheDir string
}

// Client uses the solana-go SDK's RPC client.
type Client struct {
	rpcClient      *rpc.Client
	limiter        *rate.Limiter
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
	cacheDir       string
}

// NewClient creates a new RPC client pointing to the configured endpoint.
func NewClient(opts Options) *Client {
	startTime := time.Now()
	defer func() {
		logger.Debug("NewClient took %v to initialize", time.Since(startTime))
	}()

	if opts.Endpoint == "" {
		opts.Endpoint = DefaultMainnetEndpoint
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		rpcClient:      rpc.New(opts.Endpoint),
		limiter:        limiter,
		commitment:     rpc.CommitmentConfirmed,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		cacheDir:       opts.CacheDir,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// NativeBalance returns the lamport balance of address.
func (c *Client) NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpcClient.GetBalance(ctx, address, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}
	return out.Value, nil
}

// TokenBalance returns the raw amount held by tokenAccount. It fails when the
// account does not exist.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpcClient.GetTokenAccountBalance(ctx, tokenAccount, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance of %s: %w", tokenAccount, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("empty token balance response for %s", tokenAccount)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q for %s: %w", out.Value.Amount, tokenAccount, err)
	}
	return amount, nil
}

// AccountExists reports whether address holds an account.
func (c *Client) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	out, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account info for %s: %w", address, err)
	}
	return out != nil && out.Value != nil, nil
}

// TokenAccountsByOwner lists the SPL token accounts owned by owner.
func (c *Client) TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]solana.PublicKey, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	tokenProgramID := solana.TokenProgramID // from solana-go SDK

	config := &rpc.GetTokenAccountsConfig{
		ProgramId: &tokenProgramID,
	}
	opts := &rpc.GetTokenAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	}
	accts, err := c.rpcClient.GetTokenAccountsByOwner(ctx, owner, config, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts by owner %s: %w", owner, err)
	}

	result := make([]solana.PublicKey, 0, len(accts.Value))
	for _, acct := range accts.Value {
		if acct == nil {
			continue
		}
		result = append(result, acct.Pubkey)
	}
	return result, nil
}

// LatestBlockhash returns a fresh blockhash for transaction building.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	out, err := c.rpcClient.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty latest blockhash response")
	}
	return out.Value.Blockhash, nil
}

// FeeForMessage returns the fee the cluster charges for msg.
func (c *Client) FeeForMessage(ctx context.Context, msg *solana.Message) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	raw, err := msg.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("failed to encode message: %w", err)
	}
	out, err := c.rpcClient.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(raw), c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get fee for message: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("fee unavailable, blockhash may have expired")
	}
	return *out.Value, nil
}

// SubmitAndConfirm sends tx with preflight checks and polls its signature
// status until it reaches confirmed commitment, fails, or the confirm timeout
// elapses.
func (c *Client) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	logger.Debug("Sent transaction %s, waiting for confirmation", sig)

	confirmCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.wait(confirmCtx); err == nil {
			statuses, err := c.rpcClient.GetSignatureStatuses(confirmCtx, false, sig)
			if err != nil {
				logger.Debug("Signature status poll for %s failed: %v", sig, err)
			} else if statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
				status := statuses.Value[0]
				if status.Err != nil {
					return sig, fmt.Errorf("transaction %s failed: %v", sig, status.Err)
				}
				switch status.ConfirmationStatus {
				case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
					return sig, nil
				}
			}
		}

		select {
		case <-confirmCtx.Done():
			return sig, fmt.Errorf("transaction %s not confirmed within %v: %w", sig, c.confirmTimeout, confirmCtx.Err())
		case <-ticker.C:
		}
	}
}

// MintDecimals reads the decimals of an SPL token mint from chain.
func (c *Client) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpcClient.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to get mint account %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("mint account %s not found", mint)
	}
	if out.Value.Owner != solana.TokenProgramID {
		return 0, fmt.Errorf("account %s is not an SPL token mint (owner %s)", mint, out.Value.Owner)
	}

	var mintAccount token.Mint
	if err := bin.NewBinDecoder(out.Value.Data.GetBinary()).Decode(&mintAccount); err != nil {
		return 0, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}
	return mintAccount.Decimals, nil
}
