package batch

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/solfleet/internal/core"
)

var (
	errRPC         = errors.New("rpc unavailable")
	errUnconfirmed = errors.New("transaction not confirmed: context deadline exceeded")
)

// fakeChain is an in-memory ledger good enough to drive the orchestrator.
// It applies transfers, token account creation and closing, and charges the
// payer a flat fee. Balances never go below zero.
type fakeChain struct {
	mu sync.Mutex

	native   map[solana.PublicKey]uint64
	tokens   map[solana.PublicKey]uint64
	accounts map[solana.PublicKey]bool
	owned    map[solana.PublicKey][]solana.PublicKey
	hidden   map[solana.PublicKey]bool

	fee uint64

	// failSubmits makes the first n submissions paid by a key fail.
	failSubmits map[solana.PublicKey]int
	// failAlways makes every submission paid by a key fail.
	failAlways map[solana.PublicKey]bool
	// unconfirmed makes the first n submissions paid by a key land but
	// report a confirmation failure.
	unconfirmed map[solana.PublicKey]int
	// panicOn makes every balance lookup for a key panic.
	panicOn map[solana.PublicKey]bool
	latency time.Duration

	submits   map[solana.PublicKey]int
	creates   int
	closes    int
	transfers int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		native:      make(map[solana.PublicKey]uint64),
		tokens:      make(map[solana.PublicKey]uint64),
		accounts:    make(map[solana.PublicKey]bool),
		owned:       make(map[solana.PublicKey][]solana.PublicKey),
		hidden:      make(map[solana.PublicKey]bool),
		fee:         5000,
		failSubmits: make(map[solana.PublicKey]int),
		failAlways:  make(map[solana.PublicKey]bool),
		unconfirmed: make(map[solana.PublicKey]int),
		panicOn:     make(map[solana.PublicKey]bool),
		submits:     make(map[solana.PublicKey]int),
	}
}

// addTokenAccount registers an existing associated token account.
func (f *fakeChain) addTokenAccount(t *testing.T, owner, mint solana.PublicKey, balance uint64) solana.PublicKey {
	t.Helper()
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr] = true
	f.tokens[addr] = balance
	f.owned[owner] = append(f.owned[owner], addr)
	return addr
}

// enter counts a call as in flight for its whole duration, including the
// configured latency, and returns the matching leave.
func (f *fakeChain) enter() func() {
	n := f.inFlight.Add(1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeChain) NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	boom := f.panicOn[address]
	balance := f.native[address]
	f.mu.Unlock()
	if boom {
		panic("balance lookup exploded")
	}
	return balance, nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accounts[tokenAccount] {
		return 0, errors.New("could not find account")
	}
	return f.tokens[tokenAccount], nil
}

func (f *fakeChain) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hidden[address] {
		delete(f.hidden, address)
		return false, nil
	}
	return f.accounts[address], nil
}

func (f *fakeChain) TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]solana.PublicKey, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []solana.PublicKey
	for _, acct := range f.owned[owner] {
		if f.accounts[acct] {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (f *fakeChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return solana.Hash{}, err
	}
	return solana.Hash{1, 2, 3}, nil
}

func (f *fakeChain) FeeForMessage(ctx context.Context, _ *solana.Message) (uint64, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.fee, nil
}

func (f *fakeChain) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	keys := tx.Message.AccountKeys
	payer := keys[0]
	f.submits[payer]++
	if f.failAlways[payer] {
		return solana.Signature{}, errRPC
	}
	if f.failSubmits[payer] > 0 {
		f.failSubmits[payer]--
		return solana.Signature{}, errRPC
	}

	for _, ci := range tx.Message.Instructions {
		program := keys[ci.ProgramIDIndex]
		switch {
		case program.Equals(solana.SPLAssociatedTokenAccountProgramID):
			addr := keys[ci.Accounts[1]]
			owner := keys[ci.Accounts[2]]
			if f.accounts[addr] {
				return solana.Signature{}, errors.New("Provided owner is not allowed: account already in use")
			}
			f.accounts[addr] = true
			f.owned[owner] = append(f.owned[owner], addr)
			f.creates++
		case program.Equals(solana.TokenProgramID) && len(ci.Data) > 0 && ci.Data[0] == 9:
			addr := keys[ci.Accounts[0]]
			if !f.accounts[addr] {
				return solana.Signature{}, errors.New("invalid account data for instruction")
			}
			delete(f.accounts, addr)
			delete(f.tokens, addr)
			f.closes++
		case program.Equals(solana.TokenProgramID) && len(ci.Data) >= 9 && ci.Data[0] == 12:
			amount := binary.LittleEndian.Uint64(ci.Data[1:9])
			src, dest := keys[ci.Accounts[0]], keys[ci.Accounts[2]]
			f.tokens[dest] += debit(f.tokens, src, amount)
			f.transfers++
		case program.Equals(solana.SystemProgramID) && len(ci.Data) >= 12 && binary.LittleEndian.Uint32(ci.Data[:4]) == 2:
			lamports := binary.LittleEndian.Uint64(ci.Data[4:12])
			from, to := keys[ci.Accounts[0]], keys[ci.Accounts[1]]
			f.native[to] += debit(f.native, from, lamports)
			f.transfers++
		default:
			f.transfers++
		}
	}
	debit(f.native, payer, f.fee)

	if f.unconfirmed[payer] > 0 {
		f.unconfirmed[payer]--
		return solana.Signature{}, errUnconfirmed
	}
	return tx.Signatures[0], nil
}

// debit takes up to amount from balances[key] and returns what was taken.
func debit(balances map[solana.PublicKey]uint64, key solana.PublicKey, amount uint64) uint64 {
	taken := min(amount, balances[key])
	balances[key] -= taken
	return taken
}

func (f *fakeChain) submitCount(payer solana.PublicKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits[payer]
}

func newTestWallet(t *testing.T) *core.Wallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return core.NewWallet(key.PublicKey().String()+".json", key)
}

func newTestEntries(t *testing.T, n int) []core.WalletEntry {
	t.Helper()
	entries := make([]core.WalletEntry, n)
	for i := range entries {
		w := newTestWallet(t)
		entries[i] = core.WalletEntry{Path: w.Path, Wallet: w}
	}
	return entries
}

func testOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		Throttle:    time.Millisecond,
		Retry:       RetryPolicy{Backoff: 10 * time.Millisecond},
	}
}

// recordingReporter collects every recorded outcome.
type recordingReporter struct {
	mu      sync.Mutex
	records map[string][]core.Outcome
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{records: make(map[string][]core.Outcome)}
}

func (r *recordingReporter) Record(address string, outcome core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[address] = append(r.records[address], outcome)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, outs := range r.records {
		n += len(outs)
	}
	return n
}
