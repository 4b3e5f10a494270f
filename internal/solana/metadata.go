package solana

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	bin "github.com/gagliardetto/binary"
	tokenmetadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sugawarayuuta/sonnet"

	"github.com/hunterwarburton/solfleet/internal/logger"
)

// MetaplexTokenMetadataProgramID is the program ID for the Metaplex Token Metadata program.
const MetaplexTokenMetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

var metaplexProgramID = solana.MustPublicKeyFromBase58(MetaplexTokenMetadataProgramID)

// Error type constants for permanent metadata lookup failures
const (
	ErrorTypeOnchainMetadataNotFound  = "onchain_metadata_not_found"
	ErrorTypeOnchainDeserializeFailed = "onchain_deserialize_failed"
)

// TokenInfo is the on-chain Metaplex name and symbol of a mint, used to label
// balance reports. A permanently bad entry is cached so the lookup is not
// repeated on every run.
type TokenInfo struct {
	MintAddress string `json:"mint_address"`
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	URI         string `json:"uri,omitempty"`

	IsPermanentlyBad bool   `json:"is_permanently_bad,omitempty"`
	ErrorType        string `json:"error_type,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// Label returns the best human readable name for the mint.
func (t *TokenInfo) Label() string {
	if t == nil {
		return ""
	}
	if t.Symbol != "" {
		return t.Symbol
	}
	if t.Name != "" {
		return t.Name
	}
	return t.MintAddress
}

// deriveMetaplexMetadataPDA derives the Metaplex Token Metadata PDA for a given mint.
func deriveMetaplexMetadataPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			metaplexProgramID.Bytes(),
			mint.Bytes(),
		},
		metaplexProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find Metaplex metadata PDA: %w", err)
	}
	return pda, nil
}

// loadTokenInfoFromCache returns nil, nil on a cache miss.
func loadTokenInfoFromCache(cacheDir string, mint solana.PublicKey) (*TokenInfo, error) {
	if cacheDir == "" {
		return nil, nil
	}
	cacheFilePath := filepath.Join(cacheDir, mint.String()+".json")

	data, err := os.ReadFile(cacheFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Disk cache miss for token metadata: %s", mint)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", cacheFilePath, err)
	}

	var info TokenInfo
	if err := sonnet.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache file %s: %w", cacheFilePath, err)
	}
	logger.Debug("Disk cache hit for token metadata: %s", mint)
	return &info, nil
}

func writeTokenInfoToCache(cacheDir string, info *TokenInfo) error {
	if cacheDir == "" {
		return nil
	}
	if info == nil {
		return fmt.Errorf("cannot cache nil TokenInfo")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", cacheDir, err)
	}

	data, err := sonnet.Marshal(info)
	if err != nil {
		return err
	}
	cacheFilePath := filepath.Join(cacheDir, info.MintAddress+".json")
	return os.WriteFile(cacheFilePath, data, 0o644)
}

// TokenMetadata fetches the Metaplex metadata account of mint and decodes its
// name and symbol. Missing or undecodable metadata is reported as a permanently
// bad TokenInfo rather than an error; transient RPC failures return an error.
func (c *Client) TokenMetadata(ctx context.Context, mint solana.PublicKey) (*TokenInfo, error) {
	cached, err := loadTokenInfoFromCache(c.cacheDir, mint)
	if err != nil {
		logger.Warn("Ignoring token metadata cache for %s: %v", mint, err)
	} else if cached != nil {
		return cached, nil
	}

	metadataPDA, err := deriveMetaplexMetadataPDA(mint)
	if err != nil {
		return nil, err
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	accountInfo, err := c.rpcClient.GetAccountInfo(ctx, metadataPDA)
	if err != nil && !errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("RPC error fetching Metaplex metadata account %s for mint %s: %w", metadataPDA, mint, err)
	}

	info := &TokenInfo{MintAddress: mint.String()}
	switch {
	case accountInfo == nil || accountInfo.Value == nil:
		info.IsPermanentlyBad = true
		info.ErrorType = ErrorTypeOnchainMetadataNotFound
		info.ErrorMessage = fmt.Sprintf("Metaplex metadata account %s not found", metadataPDA)
	case accountInfo.Value.Owner != metaplexProgramID:
		info.IsPermanentlyBad = true
		info.ErrorType = ErrorTypeOnchainMetadataNotFound
		info.ErrorMessage = fmt.Sprintf("Metaplex metadata account %s has wrong owner: %s", metadataPDA, accountInfo.Value.Owner)
	default:
		var onChainMeta tokenmetadata.Metadata
		if err := bin.NewBorshDecoder(accountInfo.Value.Data.GetBinary()).Decode(&onChainMeta); err != nil {
			info.IsPermanentlyBad = true
			info.ErrorType = ErrorTypeOnchainDeserializeFailed
			info.ErrorMessage = fmt.Sprintf("Failed to deserialize on-chain Metaplex metadata: %v", err)
			break
		}
		// Name, symbol and URI are null padded on chain
		info.Name = strings.TrimRight(onChainMeta.Data.Name, "\x00")
		info.Symbol = strings.TrimRight(onChainMeta.Data.Symbol, "\x00")
		info.URI = strings.TrimRight(onChainMeta.Data.Uri, "\x00")
	}

	if cacheErr := writeTokenInfoToCache(c.cacheDir, info); cacheErr != nil {
		logger.Warn("Failed to cache token metadata for mint %s: %v", mint, cacheErr)
	}
	return info, nil
}
