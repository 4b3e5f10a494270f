package core

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Wallet is a keypair-backed identity loaded from a WalletSource.
// It is never mutated once created.
type Wallet struct {
	Path string            `json:"path,omitempty"`
	Key  solana.PrivateKey `json:"-"`
}

// NewWallet wraps a private key as a Wallet.
func NewWallet(path string, key solana.PrivateKey) *Wallet {
	return &Wallet{Path: path, Key: key}
}

// Address returns the wallet's public key.
func (w *Wallet) Address() solana.PublicKey {
	return w.Key.PublicKey()
}

// AssetKind selects which balance query and instruction family applies.
type AssetKind int

const (
	AssetNative AssetKind = iota
	AssetToken
)

// Asset is either the chain's native currency or an SPL token.
type Asset struct {
	Kind     AssetKind
	Mint     solana.PublicKey
	Decimals uint8
}

// Native returns the SOL asset.
func Native() Asset {
	return Asset{Kind: AssetNative}
}

// Token returns an SPL token asset for the given mint.
func Token(mint solana.PublicKey, decimals uint8) Asset {
	return Asset{Kind: AssetToken, Mint: mint, Decimals: decimals}
}

// IsToken reports whether the asset is an SPL token.
func (a Asset) IsToken() bool {
	return a.Kind == AssetToken
}

func (a Asset) String() string {
	if a.IsToken() {
		return fmt.Sprintf("token:%s", a.Mint)
	}
	return "sol"
}

// OperationKind enumerates the per-wallet chain operations.
type OperationKind int

const (
	OpDistribute OperationKind = iota + 1
	OpCollect
	OpCloseIfEmpty
	OpQueryBalance
)

func (k OperationKind) String() string {
	switch k {
	case OpDistribute:
		return "distribute"
	case OpCollect:
		return "collect"
	case OpCloseIfEmpty:
		return "close"
	case OpQueryBalance:
		return "balance"
	default:
		return fmt.Sprintf("operation(%d)", int(k))
	}
}

// Operation is one batch operation. Amount is only meaningful for Distribute.
type Operation struct {
	Kind   OperationKind
	Amount uint64
}

// Distribute sends amount base units from the main wallet to every sub wallet.
func Distribute(amount uint64) Operation {
	return Operation{Kind: OpDistribute, Amount: amount}
}

// Collect sweeps each sub wallet's balance back to the main wallet.
func Collect() Operation {
	return Operation{Kind: OpCollect}
}

// CloseIfEmpty closes each sub wallet's empty token account(s).
func CloseIfEmpty() Operation {
	return Operation{Kind: OpCloseIfEmpty}
}

// QueryBalance sums the balances of all sub wallets.
func QueryBalance() Operation {
	return Operation{Kind: OpQueryBalance}
}

func (o Operation) String() string {
	if o.Kind == OpDistribute {
		return fmt.Sprintf("%s(%d)", o.Kind, o.Amount)
	}
	return o.Kind.String()
}

// NeedsMain reports whether the operation moves value to or from the main wallet
// or needs it as fee payer.
func (o Operation) NeedsMain() bool {
	return o.Kind != OpQueryBalance
}

// Validate checks that op can run against asset with the given main wallet.
func (o Operation) Validate(asset Asset, main *Wallet) error {
	switch o.Kind {
	case OpDistribute, OpCollect, OpCloseIfEmpty, OpQueryBalance:
	default:
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidOperation, int(o.Kind))
	}
	if o.Kind == OpDistribute && o.Amount == 0 {
		return fmt.Errorf("%w: distribute amount must be positive", ErrInvalidOperation)
	}
	if o.NeedsMain() && main == nil {
		return fmt.Errorf("%w: %s requires a main wallet", ErrInvalidOperation, o.Kind)
	}
	if asset.IsToken() && asset.Mint.IsZero() {
		return fmt.Errorf("%w: token asset requires a mint", ErrInvalidOperation)
	}
	return nil
}

// WalletEntry is one item produced by a WalletSource: either a parsed wallet
// or the error that prevented parsing it.
type WalletEntry struct {
	Path   string
	Wallet *Wallet
	Err    error
}

// WorkItem is the unit dispatched to one worker.
type WorkItem struct {
	Wallet    *Wallet
	Operation Operation
	Asset     Asset
}

// OutcomeKind is the terminal state of one WorkItem.
type OutcomeKind int

const (
	OutcomeLanded OutcomeKind = iota + 1
	OutcomeSkipped
	OutcomeAbandoned
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLanded:
		return "landed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Outcome is what one worker produced for its WorkItem.
// Signature is zero for balance queries, for effects found already on chain
// after an unconfirmed attempt, and for non-landed outcomes.
type Outcome struct {
	Kind      OutcomeKind
	Signature solana.Signature
	Reason    string
	Amount    uint64
}

// Landed builds a landed outcome.
func Landed(sig solana.Signature) Outcome {
	return Outcome{Kind: OutcomeLanded, Signature: sig}
}

// Skipped builds a skipped outcome.
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Abandoned builds an abandoned outcome.
func Abandoned(reason string) Outcome {
	return Outcome{Kind: OutcomeAbandoned, Reason: reason}
}

// HasSignature reports whether the outcome carries a transaction signature.
func (o Outcome) HasSignature() bool {
	return o.Signature != solana.Signature{}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeLanded:
		if !o.HasSignature() {
			if o.Reason != "" {
				return fmt.Sprintf("landed (%s) amount=%d", o.Reason, o.Amount)
			}
			return fmt.Sprintf("landed amount=%d", o.Amount)
		}
		return fmt.Sprintf("landed %s", o.Signature)
	default:
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	}
}

// WalletOutcome ties an outcome to the wallet it belongs to.
type WalletOutcome struct {
	Address string
	Path    string
	Outcome Outcome
}

// BatchSummary aggregates the outcomes of one batch call.
type BatchSummary struct {
	Operation Operation
	Asset     Asset
	Landed    int
	Skipped   int
	Abandoned int
	// Total is the aggregated balance for QueryBalance batches.
	Total    uint64
	Outcomes []WalletOutcome
	Started  time.Time
	Elapsed  time.Duration
}

// Add folds one wallet outcome into the summary.
func (s *BatchSummary) Add(wo WalletOutcome) {
	switch wo.Outcome.Kind {
	case OutcomeLanded:
		s.Landed++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Abandoned++
	}
	s.Outcomes = append(s.Outcomes, wo)
}

// Count returns the number of outcomes folded into the summary.
func (s *BatchSummary) Count() int {
	return s.Landed + s.Skipped + s.Abandoned
}

func (s *BatchSummary) String() string {
	str := fmt.Sprintf("%s %s: %d landed, %d skipped, %d abandoned in %v",
		s.Operation, s.Asset, s.Landed, s.Skipped, s.Abandoned, s.Elapsed.Round(time.Millisecond))
	if s.Operation.Kind == OpQueryBalance {
		str += fmt.Sprintf(", total %d", s.Total)
	}
	return str
}
