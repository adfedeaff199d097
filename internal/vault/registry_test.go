package vault

import (
	"errors"
	"fmt"
	"testing"

	"CollateralVault/internal/chain"
)

func TestRegistryCodecRoundTrip(t *testing.T) {
	r := &Registry{
		Admin: chain.DeriveID("admin"),
		Delegates: []chain.Pubkey{
			chain.DeriveID("delegate-1"),
			chain.DeriveID("delegate-2"),
		},
		Paused:    true,
		UpdatedAt: 1_700_000_000,
		Bump:      253,
	}

	data := r.Encode()
	if len(data) != RegistryRecordLen {
		t.Fatalf("record length = %d, want %d", len(data), RegistryRecordLen)
	}
	if data[0] != RegistryTagRegistry {
		t.Fatalf("record tag = 0x%02x, want 0x%02x", data[0], RegistryTagRegistry)
	}

	got, err := DecodeRegistry(data)
	if err != nil {
		t.Fatalf("DecodeRegistry: %v", err)
	}
	if got.Admin != r.Admin || got.Paused != r.Paused || got.UpdatedAt != r.UpdatedAt || got.Bump != r.Bump {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, r)
	}
	if len(got.Delegates) != 2 || got.Delegates[0] != r.Delegates[0] || got.Delegates[1] != r.Delegates[1] {
		t.Errorf("delegates mismatch: got %v, want %v", got.Delegates, r.Delegates)
	}
}

func TestRegistryCodecEmptyDelegates(t *testing.T) {
	r := &Registry{Admin: chain.DeriveID("admin"), UpdatedAt: 1, Bump: 255}

	got, err := DecodeRegistry(r.Encode())
	if err != nil {
		t.Fatalf("DecodeRegistry: %v", err)
	}
	if len(got.Delegates) != 0 {
		t.Errorf("got %d delegates, want 0", len(got.Delegates))
	}
	if got.Paused {
		t.Error("Paused decoded true, want false")
	}
}

func TestDecodeRegistryRejectsBadRecords(t *testing.T) {
	if _, err := DecodeRegistry(make([]byte, RegistryRecordLen+1)); err == nil {
		t.Error("expected error for wrong length")
	}

	wrongTag := (&Registry{}).Encode()
	wrongTag[0] = RecordTagVault
	if _, err := DecodeRegistry(wrongTag); err == nil {
		t.Error("expected error for wrong record tag")
	}

	overCount := (&Registry{}).Encode()
	overCount[33] = MaxDelegates + 1
	if _, err := DecodeRegistry(overCount); err == nil {
		t.Error("expected error for delegate count above capacity")
	}
}

func TestAddDelegate(t *testing.T) {
	r := &Registry{Admin: chain.DeriveID("admin")}
	d := chain.DeriveID("delegate")

	if err := r.AddDelegate(d); err != nil {
		t.Fatalf("AddDelegate: %v", err)
	}
	if !r.IsDelegate(d) {
		t.Error("delegate not enrolled after AddDelegate")
	}

	// Re-adding is a no-op success; the list stays unique.
	if err := r.AddDelegate(d); err != nil {
		t.Fatalf("duplicate AddDelegate: %v", err)
	}
	if len(r.Delegates) != 1 {
		t.Errorf("got %d delegates after duplicate add, want 1", len(r.Delegates))
	}
}

func TestAddDelegateFullList(t *testing.T) {
	r := &Registry{Admin: chain.DeriveID("admin")}
	for i := 0; i < MaxDelegates; i++ {
		if err := r.AddDelegate(chain.DeriveID(fmt.Sprintf("delegate-%d", i))); err != nil {
			t.Fatalf("AddDelegate %d: %v", i, err)
		}
	}

	err := r.AddDelegate(chain.DeriveID("one-too-many"))
	if !errors.Is(err, ErrDelegateListFull) {
		t.Errorf("got %v, want ErrDelegateListFull", err)
	}
	if len(r.Delegates) != MaxDelegates {
		t.Errorf("got %d delegates, want %d", len(r.Delegates), MaxDelegates)
	}
}

func TestRemoveDelegate(t *testing.T) {
	r := &Registry{Admin: chain.DeriveID("admin")}
	a := chain.DeriveID("delegate-a")
	b := chain.DeriveID("delegate-b")
	r.AddDelegate(a)
	r.AddDelegate(b)

	if err := r.RemoveDelegate(a); err != nil {
		t.Fatalf("RemoveDelegate: %v", err)
	}
	if r.IsDelegate(a) {
		t.Error("delegate still enrolled after removal")
	}
	if !r.IsDelegate(b) {
		t.Error("removal dropped the wrong delegate")
	}

	if err := r.RemoveDelegate(a); !errors.Is(err, ErrDelegateNotPresent) {
		t.Errorf("got %v, want ErrDelegateNotPresent", err)
	}
}

func TestErrorCodesStable(t *testing.T) {
	// Ordinals are part of the external interface.
	want := map[Code]uint32{
		CodeInvalidAmount:         6000,
		CodeInvalidAssetMint:      6001,
		CodeInsufficientAvailable: 6002,
		CodeInsufficientLocked:    6003,
		CodeUnauthorized:          6004,
		CodeUnauthorizedDelegate:  6005,
		CodeNotAdmin:              6006,
		CodeVaultAlreadyExists:    6007,
		CodeVaultNotFound:         6008,
		CodePaused:                6009,
		CodeDelegateListFull:      6010,
		CodeDelegateNotPresent:    6011,
		CodeOverflow:              6012,
		CodeUnderflow:             6013,
	}
	for code, ordinal := range want {
		if uint32(code) != ordinal {
			t.Errorf("%s = %d, want %d", code, uint32(code), ordinal)
		}
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := &Error{Code: CodePaused, Op: "deposit"}
	if !errors.Is(err, ErrPaused) {
		t.Error("errors.Is should match by code regardless of Op")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is matched a different code")
	}
	if got := err.Error(); got != "deposit: Paused" {
		t.Errorf("Error() = %q, want %q", got, "deposit: Paused")
	}
}
