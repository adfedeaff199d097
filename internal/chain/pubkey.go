package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte principal identifier (wallet, program, or derived
// address). The zero value is treated as "no key".
type Pubkey [32]byte

// ZeroPubkey is the all-zeros key.
var ZeroPubkey Pubkey

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != len(pk) {
		return pk, fmt.Errorf("pubkey must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 parses a base58-encoded 32-byte key.
func PubkeyFromBase58(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(raw)
}

// MustPubkey parses a base58 key and panics on error. For constants and tests.
func MustPubkey(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// DeriveID returns the pubkey whose bytes are sha256(label). Deterministic
// identifiers for the emulated runtime (program IDs, mints) when no real
// keypair exists; overridable through configuration.
func DeriveID(label string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(label)))
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

func (pk Pubkey) Bytes() []byte {
	out := make([]byte, len(pk))
	copy(out, pk[:])
	return out
}

func (pk Pubkey) IsZero() bool {
	return pk == ZeroPubkey
}

// Less orders keys lexicographically. Used for deterministic lock ordering.
func (pk Pubkey) Less(other Pubkey) bool {
	return bytes.Compare(pk[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler (base58, like explorers show).
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
