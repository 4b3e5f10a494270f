package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

// DirSource is a WalletSource over a directory of keypair files.
type DirSource struct{}

// ListWallets parses every regular file in dir. Files that fail to parse are
// returned as entries carrying the error; a directory that cannot be read is
// an error.
func (DirSource) ListWallets(dir string) ([]core.WalletEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet directory: %w", err)
	}

	entries := make([]core.WalletEntry, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(dir, f.Name())
		key, err := ReadKeyfile(path)
		if err != nil {
			entries = append(entries, core.WalletEntry{Path: path, Err: err})
			continue
		}
		entries = append(entries, core.WalletEntry{Path: path, Wallet: core.NewWallet(path, key)})
	}
	logger.Debug("Loaded %d wallet files from %s", len(entries), dir)
	return entries, nil
}

// Load reads a single keypair file, typically the main wallet.
func Load(path string) (*core.Wallet, error) {
	key, err := ReadKeyfile(path)
	if err != nil {
		return nil, err
	}
	return core.NewWallet(path, key), nil
}

// Generate creates n new keypairs in dir, each stored as <address>.json, and
// returns them. dir is created if needed.
func Generate(dir string, n int) ([]*core.Wallet, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create wallet directory %s: %w", dir, err)
	}

	wallets := make([]*core.Wallet, 0, n)
	for i := 0; i < n; i++ {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return wallets, fmt.Errorf("failed to generate keypair: %w", err)
		}
		path := filepath.Join(dir, key.PublicKey().String()+".json")
		if err := WriteKeyfile(path, key); err != nil {
			return wallets, err
		}
		logger.Info("Generated wallet %s", key.PublicKey())
		wallets = append(wallets, core.NewWallet(path, key))
	}
	return wallets, nil
}
