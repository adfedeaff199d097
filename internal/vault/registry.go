package vault

import (
	"encoding/binary"
	"fmt"

	"CollateralVault/internal/chain"
)

// RegistrySeed is the single derivation seed of the authority registry;
// there is exactly one registry per program deployment.
const RegistrySeed = "vault_authority"

// MaxDelegates caps the whitelist so the registry record stays fixed-size.
const MaxDelegates = 10

const (
	RegistryTagRegistry byte = 0x02

	// tag + admin + vec length + 10 delegate slots + bump + paused + updated_at
	RegistryRecordLen = 1 + 32 + 4 + 32*MaxDelegates + 1 + 1 + 8
)

// Registry is the singleton authority configuration: the admin principal,
// the delegate whitelist permitted to lock/unlock/transfer, and the
// emergency pause flag. Admin is immutable after creation.
type Registry struct {
	Admin     chain.Pubkey
	Delegates []chain.Pubkey
	Paused    bool
	UpdatedAt int64
	Bump      uint8
}

// DeriveRegistryAddress returns the registry PDA and bump.
func DeriveRegistryAddress(programID chain.Pubkey) (chain.Pubkey, uint8, error) {
	return chain.FindProgramAddress([][]byte{[]byte(RegistrySeed)}, programID)
}

// IsDelegate reports whether p is enrolled. Linear scan; the list holds at
// most MaxDelegates entries.
func (r *Registry) IsDelegate(p chain.Pubkey) bool {
	for _, d := range r.Delegates {
		if d == p {
			return true
		}
	}
	return false
}

// AddDelegate enrolls p. Enrolling an already-present delegate is a no-op
// success, preserving uniqueness; a full list fails.
func (r *Registry) AddDelegate(p chain.Pubkey) error {
	if r.IsDelegate(p) {
		return nil
	}
	if len(r.Delegates) >= MaxDelegates {
		return ErrDelegateListFull
	}
	r.Delegates = append(r.Delegates, p)
	return nil
}

// RemoveDelegate removes p, failing if it is not enrolled.
func (r *Registry) RemoveDelegate(p chain.Pubkey) error {
	for i, d := range r.Delegates {
		if d == p {
			r.Delegates = append(r.Delegates[:i], r.Delegates[i+1:]...)
			return nil
		}
	}
	return ErrDelegateNotPresent
}

// Encode serializes the registry into its fixed-size record. The record is
// sized for the full 10-delegate capacity; unused slots stay zero.
func (r *Registry) Encode() []byte {
	buf := make([]byte, RegistryRecordLen)
	buf[0] = RegistryTagRegistry

	off := 1
	copy(buf[off:], r.Admin[:])
	off += 32
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Delegates)))
	off += 4
	for _, d := range r.Delegates {
		copy(buf[off:], d[:])
		off += 32
	}
	off = 1 + 32 + 4 + 32*MaxDelegates
	buf[off] = r.Bump
	off++
	if r.Paused {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.UpdatedAt))

	return buf
}

// DecodeRegistry parses a registry record.
func DecodeRegistry(data []byte) (*Registry, error) {
	if len(data) != RegistryRecordLen {
		return nil, fmt.Errorf("registry record must be %d bytes, got %d", RegistryRecordLen, len(data))
	}
	if data[0] != RegistryTagRegistry {
		return nil, fmt.Errorf("record tag 0x%02x is not a registry", data[0])
	}

	r := &Registry{}
	off := 1
	copy(r.Admin[:], data[off:])
	off += 32
	n := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if n > MaxDelegates {
		return nil, fmt.Errorf("registry claims %d delegates, max is %d", n, MaxDelegates)
	}
	r.Delegates = make([]chain.Pubkey, n)
	for i := range r.Delegates {
		copy(r.Delegates[i][:], data[off+32*i:])
	}
	off = 1 + 32 + 4 + 32*MaxDelegates
	r.Bump = data[off]
	off++
	r.Paused = data[off] == 1
	off++
	r.UpdatedAt = int64(binary.LittleEndian.Uint64(data[off:]))

	return r, nil
}
