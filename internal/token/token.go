// Package token is the asset-transfer bridge: a minimal fungible-token
// ledger for the single custody asset. Accounts are records in the chain
// account store, so a custody instruction's token movement commits in the
// same atomic write set as its vault accounting.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"CollateralVault/internal/chain"
)

const (
	RecordTagAccount byte = 0x03

	// tag + mint + owner + amount
	AccountRecordLen = 1 + 32 + 32 + 8
)

var (
	ErrMintMismatch      = errors.New("token: account holds a different mint")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrUnauthorized      = errors.New("token: signer does not own the source account")
	ErrAmountOverflow    = errors.New("token: balance overflow")
)

// Account is a token balance: the mint it denominates, the owning principal,
// and the amount in the asset's smallest unit.
type Account struct {
	Mint   chain.Pubkey
	Owner  chain.Pubkey
	Amount uint64
}

// DeriveAccountAddress returns the associated token address for (mint, owner)
// under the token program, plus its bump. Off-curve owners are permitted;
// custody sub-accounts are owned by vault addresses that have no private key.
func DeriveAccountAddress(tokenProgramID, mint, owner chain.Pubkey) (chain.Pubkey, uint8, error) {
	return chain.FindProgramAddress([][]byte{mint[:], owner[:]}, tokenProgramID)
}

// AuthorizeOwner verifies an owner-signed transfer: the signer must be the
// source account's owner.
func AuthorizeOwner(from *Account, signer chain.Pubkey) error {
	if signer != from.Owner {
		return ErrUnauthorized
	}
	return nil
}

// AuthorizeSeeds verifies a program-signed transfer: replaying seeds under
// programID must land exactly on the source account's owner. This is the
// only way to move funds out of an account owned by a derived address.
func AuthorizeSeeds(from *Account, seeds [][]byte, programID chain.Pubkey) error {
	derived, err := chain.CreateProgramAddress(seeds, programID)
	if err != nil {
		return fmt.Errorf("token: replay signing seeds: %w", err)
	}
	if derived != from.Owner {
		return ErrUnauthorized
	}
	return nil
}

// Transfer moves amount from one account to the other. Authorization is
// checked by the caller (AuthorizeOwner or AuthorizeSeeds) before this runs.
// On error neither account is modified.
func Transfer(from, to *Account, amount uint64) error {
	if from.Mint != to.Mint {
		return ErrMintMismatch
	}
	if from.Amount < amount {
		return ErrInsufficientFunds
	}
	sum := to.Amount + amount
	if sum < to.Amount {
		return ErrAmountOverflow
	}
	from.Amount -= amount
	to.Amount = sum
	return nil
}

// MintTo credits freshly issued units to an account. Test and devnet support
// only; the custody program never mints.
func MintTo(acc *Account, amount uint64) error {
	sum := acc.Amount + amount
	if sum < acc.Amount {
		return ErrAmountOverflow
	}
	acc.Amount = sum
	return nil
}

// Encode serializes the account into its fixed 73-byte record.
func (a *Account) Encode() []byte {
	buf := make([]byte, AccountRecordLen)
	buf[0] = RecordTagAccount
	copy(buf[1:], a.Mint[:])
	copy(buf[33:], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[65:], a.Amount)
	return buf
}

// DecodeAccount parses a token account record.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountRecordLen {
		return nil, fmt.Errorf("token account record must be %d bytes, got %d", AccountRecordLen, len(data))
	}
	if data[0] != RecordTagAccount {
		return nil, fmt.Errorf("record tag 0x%02x is not a token account", data[0])
	}
	a := &Account{}
	copy(a.Mint[:], data[1:])
	copy(a.Owner[:], data[33:])
	a.Amount = binary.LittleEndian.Uint64(data[65:])
	return a, nil
}
