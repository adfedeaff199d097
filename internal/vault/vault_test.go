package vault

import (
	"errors"
	"math"
	"testing"

	"CollateralVault/internal/chain"
)

func testVault() *Vault {
	return &Vault{
		Owner:             chain.DeriveID("owner"),
		CustodyAccount:    chain.DeriveID("custody"),
		Total:             1000,
		Locked:            300,
		Available:         700,
		DepositedLifetime: 1500,
		WithdrawnLifetime: 500,
		CreatedAt:         1_700_000_000,
		Bump:              254,
	}
}

func TestVaultCodecRoundTrip(t *testing.T) {
	v := testVault()
	data := v.Encode()

	if len(data) != VaultRecordLen {
		t.Fatalf("record length = %d, want %d", len(data), VaultRecordLen)
	}
	if data[0] != RecordTagVault {
		t.Fatalf("record tag = 0x%02x, want 0x%02x", data[0], RecordTagVault)
	}

	got, err := DecodeVault(data)
	if err != nil {
		t.Fatalf("DecodeVault: %v", err)
	}
	if *got != *v {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestDecodeVaultRejectsBadRecords(t *testing.T) {
	if _, err := DecodeVault(make([]byte, VaultRecordLen-1)); err == nil {
		t.Error("expected error for short record")
	}

	wrongTag := testVault().Encode()
	wrongTag[0] = RegistryTagRegistry
	if _, err := DecodeVault(wrongTag); err == nil {
		t.Error("expected error for wrong record tag")
	}
}

func TestApplyDeposit(t *testing.T) {
	v := testVault()
	if err := v.ApplyDeposit(250); err != nil {
		t.Fatalf("ApplyDeposit: %v", err)
	}
	if v.Total != 1250 || v.Available != 950 || v.Locked != 300 {
		t.Errorf("balances after deposit: total=%d available=%d locked=%d", v.Total, v.Available, v.Locked)
	}
	if v.DepositedLifetime != 1750 {
		t.Errorf("DepositedLifetime = %d, want 1750", v.DepositedLifetime)
	}
	if err := v.CheckInvariants(); err != nil {
		t.Errorf("invariants after deposit: %v", err)
	}
}

func TestApplyDepositOverflow(t *testing.T) {
	v := testVault()
	before := *v
	if err := v.ApplyDeposit(math.MaxUint64); !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
	if *v != before {
		t.Errorf("vault mutated on failed deposit: got %+v, want %+v", v, before)
	}
}

func TestApplyWithdraw(t *testing.T) {
	v := testVault()
	if err := v.ApplyWithdraw(700); err != nil {
		t.Fatalf("ApplyWithdraw: %v", err)
	}
	if v.Total != 300 || v.Available != 0 || v.Locked != 300 {
		t.Errorf("balances after withdraw: total=%d available=%d locked=%d", v.Total, v.Available, v.Locked)
	}
	if v.WithdrawnLifetime != 1200 {
		t.Errorf("WithdrawnLifetime = %d, want 1200", v.WithdrawnLifetime)
	}
	if err := v.CheckInvariants(); err != nil {
		t.Errorf("invariants after withdraw: %v", err)
	}
}

func TestApplyWithdrawUnderflow(t *testing.T) {
	v := testVault()
	before := *v
	if err := v.ApplyWithdraw(v.Total + 1); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("got %v, want ErrUnderflow", err)
	}
	if *v != before {
		t.Errorf("vault mutated on failed withdraw: got %+v, want %+v", v, before)
	}
}

func TestApplyLockUnlockRoundTrip(t *testing.T) {
	v := testVault()
	before := *v

	if err := v.ApplyLock(200); err != nil {
		t.Fatalf("ApplyLock: %v", err)
	}
	if v.Total != 1000 || v.Locked != 500 || v.Available != 500 {
		t.Errorf("balances after lock: total=%d locked=%d available=%d", v.Total, v.Locked, v.Available)
	}
	if err := v.CheckInvariants(); err != nil {
		t.Errorf("invariants after lock: %v", err)
	}

	if err := v.ApplyUnlock(200); err != nil {
		t.Fatalf("ApplyUnlock: %v", err)
	}
	if *v != before {
		t.Errorf("lock;unlock is not an identity: got %+v, want %+v", v, before)
	}
}

func TestApplyLockInsufficient(t *testing.T) {
	v := testVault()
	if err := v.ApplyLock(v.Available + 1); !errors.Is(err, ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
	if err := v.ApplyUnlock(v.Locked + 1); !errors.Is(err, ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestCheckInvariantsDetectsCorruption(t *testing.T) {
	v := testVault()
	v.Locked = 301
	if err := v.CheckInvariants(); err == nil {
		t.Error("expected error when locked + available != total")
	}

	v = testVault()
	v.WithdrawnLifetime = v.DepositedLifetime + 1
	if err := v.CheckInvariants(); err == nil {
		t.Error("expected error when withdrawn exceeds deposited")
	}

	v = testVault()
	v.Total = v.DepositedLifetime - v.WithdrawnLifetime + 1
	v.Available = v.Total - v.Locked
	if err := v.CheckInvariants(); err == nil {
		t.Error("expected error when net deposits do not cover total")
	}
}

func TestDeriveAddressOffCurve(t *testing.T) {
	programID := chain.DeriveID("program")
	owner := chain.DeriveID("owner")

	addr, bump, err := DeriveAddress(programID, owner)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}

	v := &Vault{Owner: owner, Bump: bump}
	replayed, err := chain.CreateProgramAddress(v.SigningSeeds(), programID)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if replayed != addr {
		t.Errorf("signing seeds derive %s, want %s", replayed, addr)
	}
}
