package vault

import (
	"encoding/binary"
	"fmt"

	"CollateralVault/internal/chain"
)

// SeedPrefix is the first derivation seed of every vault address; the full
// tuple is ("vault", owner).
const SeedPrefix = "vault"

// Record layout: a 1-byte record tag followed by a fixed 128-byte body
// (fields in order, then zero padding). Total 129 bytes.
const (
	RecordTagVault byte = 0x01

	vaultBodyLen   = 128
	VaultRecordLen = 1 + vaultBodyLen
)

// Vault is the per-owner custody record. Balances are in the asset's
// smallest unit (6 decimals). Owner and CustodyAccount never change after
// initialization.
type Vault struct {
	Owner             chain.Pubkey
	CustodyAccount    chain.Pubkey
	Total             uint64
	Locked            uint64
	Available         uint64
	DepositedLifetime uint64
	WithdrawnLifetime uint64
	CreatedAt         int64
	Bump              uint8
}

// DeriveAddress returns the vault PDA and bump for an owner.
func DeriveAddress(programID, owner chain.Pubkey) (chain.Pubkey, uint8, error) {
	return chain.FindProgramAddress([][]byte{[]byte(SeedPrefix), owner[:]}, programID)
}

// SigningSeeds returns the seed tuple the program replays to sign for this
// vault's derived address: "vault" || owner || bump.
func (v *Vault) SigningSeeds() [][]byte {
	return [][]byte{[]byte(SeedPrefix), v.Owner[:], {v.Bump}}
}

// checked u64 arithmetic; every balance step goes through these.

func addU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// ApplyDeposit credits amount to total/available and the lifetime counter.
// Gate checks (amount > 0, pause, ownership) happen before the token
// transfer; this only runs the accounting step.
func (v *Vault) ApplyDeposit(amount uint64) error {
	total, err := addU64(v.Total, amount)
	if err != nil {
		return err
	}
	available, err := addU64(v.Available, amount)
	if err != nil {
		return err
	}
	deposited, err := addU64(v.DepositedLifetime, amount)
	if err != nil {
		return err
	}
	v.Total, v.Available, v.DepositedLifetime = total, available, deposited
	return nil
}

// ApplyWithdraw debits amount from total/available and bumps the lifetime
// withdrawal counter.
func (v *Vault) ApplyWithdraw(amount uint64) error {
	total, err := subU64(v.Total, amount)
	if err != nil {
		return err
	}
	available, err := subU64(v.Available, amount)
	if err != nil {
		return err
	}
	withdrawn, err := addU64(v.WithdrawnLifetime, amount)
	if err != nil {
		return err
	}
	v.Total, v.Available, v.WithdrawnLifetime = total, available, withdrawn
	return nil
}

// ApplyLock moves amount from available to locked. Total is unchanged.
func (v *Vault) ApplyLock(amount uint64) error {
	available, err := subU64(v.Available, amount)
	if err != nil {
		return err
	}
	locked, err := addU64(v.Locked, amount)
	if err != nil {
		return err
	}
	v.Available, v.Locked = available, locked
	return nil
}

// ApplyUnlock moves amount from locked back to available.
func (v *Vault) ApplyUnlock(amount uint64) error {
	locked, err := subU64(v.Locked, amount)
	if err != nil {
		return err
	}
	available, err := addU64(v.Available, amount)
	if err != nil {
		return err
	}
	v.Locked, v.Available = locked, available
	return nil
}

// CheckInvariants verifies the record-level invariants: total splits exactly
// into locked + available, and net lifetime deposits cover current holdings.
func (v *Vault) CheckInvariants() error {
	if v.Locked+v.Available != v.Total {
		return fmt.Errorf("vault %s: total=%d != locked=%d + available=%d",
			v.Owner, v.Total, v.Locked, v.Available)
	}
	if v.DepositedLifetime < v.WithdrawnLifetime {
		return fmt.Errorf("vault %s: withdrawn_lifetime %d exceeds deposited_lifetime %d",
			v.Owner, v.WithdrawnLifetime, v.DepositedLifetime)
	}
	if v.DepositedLifetime-v.WithdrawnLifetime < v.Total {
		return fmt.Errorf("vault %s: net deposits %d do not cover total %d",
			v.Owner, v.DepositedLifetime-v.WithdrawnLifetime, v.Total)
	}
	return nil
}

// Encode serializes the vault into its fixed 129-byte record.
func (v *Vault) Encode() []byte {
	buf := make([]byte, VaultRecordLen)
	buf[0] = RecordTagVault

	off := 1
	copy(buf[off:], v.Owner[:])
	off += 32
	copy(buf[off:], v.CustodyAccount[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], v.Total)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], v.Locked)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], v.Available)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], v.DepositedLifetime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], v.WithdrawnLifetime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(v.CreatedAt))
	off += 8
	buf[off] = v.Bump
	// remaining bytes up to the 128-byte body stay zero (reserved)

	return buf
}

// DecodeVault parses a 129-byte vault record.
func DecodeVault(data []byte) (*Vault, error) {
	if len(data) != VaultRecordLen {
		return nil, fmt.Errorf("vault record must be %d bytes, got %d", VaultRecordLen, len(data))
	}
	if data[0] != RecordTagVault {
		return nil, fmt.Errorf("record tag 0x%02x is not a vault", data[0])
	}

	v := &Vault{}
	off := 1
	copy(v.Owner[:], data[off:])
	off += 32
	copy(v.CustodyAccount[:], data[off:])
	off += 32
	v.Total = binary.LittleEndian.Uint64(data[off:])
	off += 8
	v.Locked = binary.LittleEndian.Uint64(data[off:])
	off += 8
	v.Available = binary.LittleEndian.Uint64(data[off:])
	off += 8
	v.DepositedLifetime = binary.LittleEndian.Uint64(data[off:])
	off += 8
	v.WithdrawnLifetime = binary.LittleEndian.Uint64(data[off:])
	off += 8
	v.CreatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	v.Bump = data[off]

	return v, nil
}
