package token

import (
	"fmt"

	"CollateralVault/internal/chain"
)

// Faucet issues units of the custody asset directly into the account store.
// Local devnet and test support; production deployments never construct one.
type Faucet struct {
	store        *chain.AccountStore
	tokenProgram chain.Pubkey
	mint         chain.Pubkey
}

func NewFaucet(store *chain.AccountStore, tokenProgram, mint chain.Pubkey) *Faucet {
	return &Faucet{store: store, tokenProgram: tokenProgram, mint: mint}
}

// EnsureAccount returns owner's associated token address, creating the
// account with a zero balance if it does not exist yet.
func (f *Faucet) EnsureAccount(owner chain.Pubkey) (chain.Pubkey, error) {
	addr, _, err := DeriveAccountAddress(f.tokenProgram, f.mint, owner)
	if err != nil {
		return chain.Pubkey{}, fmt.Errorf("derive token address: %w", err)
	}
	if f.store.Has(addr) {
		return addr, nil
	}
	acc := &Account{Mint: f.mint, Owner: owner}
	if err := f.store.Apply(map[chain.Pubkey][]byte{addr: acc.Encode()}); err != nil {
		return chain.Pubkey{}, err
	}
	return addr, nil
}

// Mint credits amount to owner's associated token account, creating it
// first if needed, and returns the account address.
func (f *Faucet) Mint(owner chain.Pubkey, amount uint64) (chain.Pubkey, error) {
	addr, err := f.EnsureAccount(owner)
	if err != nil {
		return chain.Pubkey{}, err
	}
	data, ok := f.store.Get(addr)
	if !ok {
		return chain.Pubkey{}, fmt.Errorf("token account %s vanished", addr)
	}
	acc, err := DecodeAccount(data)
	if err != nil {
		return chain.Pubkey{}, err
	}
	if err := MintTo(acc, amount); err != nil {
		return chain.Pubkey{}, err
	}
	if err := f.store.Apply(map[chain.Pubkey][]byte{addr: acc.Encode()}); err != nil {
		return chain.Pubkey{}, err
	}
	return addr, nil
}
