package event

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"CollateralVault/internal/chain"
)

func TestWrap(t *testing.T) {
	ev := &Deposited{
		Owner:     chain.DeriveID("owner"),
		Vault:     chain.DeriveID("vault"),
		Amount:    100,
		NewTotal:  100,
		Timestamp: 1_700_000_000,
	}

	env, err := Wrap(ev, 1_700_000_000)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if env.ID == uuid.Nil {
		t.Error("envelope ID not assigned")
	}
	if env.Name != "Deposited" {
		t.Errorf("Name = %q, want %q", env.Name, "Deposited")
	}
	if env.Timestamp != 1_700_000_000 {
		t.Errorf("Timestamp = %d, want 1700000000", env.Timestamp)
	}

	var decoded Deposited
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded != *ev {
		t.Errorf("payload round trip: got %+v, want %+v", decoded, ev)
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	env, err := Wrap(&PausedSet{Paused: true, Timestamp: 7}, 7)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if got.ID != env.ID || got.Name != env.Name || got.Timestamp != env.Timestamp {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, env)
	}
}

func TestTypeForName(t *testing.T) {
	for ty := TypeRegistryCreated; ty <= TypeTransferred; ty++ {
		if got := TypeForName(ty.String()); got != ty {
			t.Errorf("TypeForName(%q) = %v, want %v", ty.String(), got, ty)
		}
	}
	if got := TypeForName("NoSuchEvent"); got != TypeUnknown {
		t.Errorf("TypeForName for unknown name = %v, want TypeUnknown", got)
	}
}

func TestSubjectNames(t *testing.T) {
	cases := map[Type]string{
		TypeDeposited:       "deposited",
		TypeWithdrawn:       "withdrawn",
		TypeLocked:          "locked",
		TypeUnlocked:        "unlocked",
		TypeTransferred:     "transferred",
		TypeVaultCreated:    "vault_created",
		TypeRegistryCreated: "registry_created",
		TypeDelegateAdded:   "delegate_added",
		TypeDelegateRemoved: "delegate_removed",
		TypePausedSet:       "paused_set",
	}
	for ty, want := range cases {
		if got := ty.Subject(); got != want {
			t.Errorf("%v.Subject() = %q, want %q", ty, got, want)
		}
	}
}

func TestTransferReason(t *testing.T) {
	for tag, want := range map[byte]TransferReason{
		0: ReasonSettlement,
		1: ReasonLiquidation,
		2: ReasonFee,
	} {
		r, err := ParseTransferReason(tag)
		if err != nil {
			t.Fatalf("ParseTransferReason(%d): %v", tag, err)
		}
		if r != want {
			t.Errorf("ParseTransferReason(%d) = %v, want %v", tag, r, want)
		}
	}
	if _, err := ParseTransferReason(3); err == nil {
		t.Error("expected error for unknown reason tag")
	}
}

func TestTransferReasonTextRoundTrip(t *testing.T) {
	for _, r := range []TransferReason{ReasonSettlement, ReasonLiquidation, ReasonFee} {
		text, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", r, err)
		}
		var parsed TransferReason
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if parsed != r {
			t.Errorf("round trip: got %v, want %v", parsed, r)
		}
	}

	var r TransferReason
	if err := r.UnmarshalText([]byte("arbitrage")); err == nil {
		t.Error("expected error for unknown reason name")
	}
}
