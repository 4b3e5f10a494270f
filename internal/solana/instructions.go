package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// The builders in this file are pure: they never touch the network.

// TokenAccountAddress derives the associated token account of owner for mint.
func TokenAccountAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for %s/%s: %w", owner, mint, err)
	}
	return addr, nil
}

// TransferNative moves lamports from one system account to another.
func TransferNative(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// TransferTokenChecked moves amount base units of mint between token accounts,
// authorised by owner.
func TransferTokenChecked(source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) (solana.Instruction, error) {
	ix, err := token.NewTransferCheckedInstruction(
		amount,
		decimals,
		source,
		mint,
		destination,
		owner,
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build token transfer: %w", err)
	}
	return ix, nil
}

// CloseTokenAccount closes an empty token account, returning its rent to destination.
func CloseTokenAccount(account, destination, owner solana.PublicKey) (solana.Instruction, error) {
	ix, err := token.NewCloseAccountInstruction(
		account,
		destination,
		owner,
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build close account: %w", err)
	}
	return ix, nil
}

// CreateTokenAccount creates the associated token account of owner for mint, paid by payer.
func CreateTokenAccount(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ix, err := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build create token account: %w", err)
	}
	return ix, nil
}
