package token

import (
	"testing"

	"CollateralVault/internal/chain"
)

func TestFaucetMint(t *testing.T) {
	store, err := chain.OpenAccountStore("")
	if err != nil {
		t.Fatalf("OpenAccountStore: %v", err)
	}
	defer store.Close()

	f := NewFaucet(store, chain.DeriveID("token-program"), testMint)
	owner := chain.DeriveID("alice")

	addr, err := f.Mint(owner, 500)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	data, ok := store.Get(addr)
	if !ok {
		t.Fatal("token account missing after mint")
	}
	acc, err := DecodeAccount(data)
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}
	if acc.Amount != 500 || acc.Owner != owner || acc.Mint != testMint {
		t.Errorf("got %+v, want amount=500 owner=%s mint=%s", acc, owner, testMint)
	}

	// Minting again credits the same account.
	again, err := f.Mint(owner, 100)
	if err != nil {
		t.Fatalf("second Mint: %v", err)
	}
	if again != addr {
		t.Errorf("second mint used %s, want %s", again, addr)
	}
	data, _ = store.Get(addr)
	acc, _ = DecodeAccount(data)
	if acc.Amount != 600 {
		t.Errorf("Amount = %d, want 600", acc.Amount)
	}
}

func TestFaucetEnsureAccountIdempotent(t *testing.T) {
	store, err := chain.OpenAccountStore("")
	if err != nil {
		t.Fatalf("OpenAccountStore: %v", err)
	}
	defer store.Close()

	f := NewFaucet(store, chain.DeriveID("token-program"), testMint)
	owner := chain.DeriveID("bob")

	a1, err := f.EnsureAccount(owner)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	a2, err := f.EnsureAccount(owner)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if a1 != a2 {
		t.Errorf("EnsureAccount not stable: %s != %s", a1, a2)
	}
}
