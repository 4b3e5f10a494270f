package wallet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sugawarayuuta/sonnet"
)

// ErrInvalidKeypair is returned for key material that is not a 64 byte
// ed25519 keypair whose public half matches its seed.
var ErrInvalidKeypair = errors.New("invalid keypair")

// ReadKeyfile loads a keypair file in the Solana CLI format: a JSON array of
// 64 integers, the seed followed by the public key.
func ReadKeyfile(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file %s: %w", path, err)
	}
	return parseKeyfile(data)
}

func parseKeyfile(data []byte) (solana.PrivateKey, error) {
	// Decoding into []byte would expect base64, so go through ints.
	var values []int
	if err := sonnet.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	key := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range: %d", ErrInvalidKeypair, i, v)
		}
		key[i] = byte(v)
	}
	if err := checkKeypair(key); err != nil {
		return nil, err
	}
	return solana.PrivateKey(key), nil
}

// WriteKeyfile stores key in the Solana CLI format with owner-only permissions.
func WriteKeyfile(path string, key solana.PrivateKey) error {
	if err := checkKeypair(key); err != nil {
		return err
	}
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := sonnet.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode keypair: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keypair file %s: %w", path, err)
	}
	return nil
}

func checkKeypair(key []byte) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(key))
	}
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], key[ed25519.SeedSize:]) {
		return fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return nil
}

// ToBase58 reads a keypair file and returns the base58 encoding of the full
// 64 byte keypair, the form wallets import.
func ToBase58(path string) (string, error) {
	key, err := ReadKeyfile(path)
	if err != nil {
		return "", err
	}
	return base58.Encode(key), nil
}

// FromBase58 decodes a base58 keypair and writes it to path as a keypair file.
func FromBase58(encoded, path string) (solana.PrivateKey, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	if err := checkKeypair(raw); err != nil {
		return nil, err
	}
	key := solana.PrivateKey(raw)
	if err := WriteKeyfile(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
