package event

import (
	"fmt"

	"CollateralVault/internal/chain"
)

// TransferReason tags an inter-vault transfer for downstream consumers.
// The custody accounting treats all three identically.
type TransferReason uint8

const (
	ReasonSettlement TransferReason = iota
	ReasonLiquidation
	ReasonFee
)

// ParseTransferReason validates a wire tag.
func ParseTransferReason(tag byte) (TransferReason, error) {
	switch r := TransferReason(tag); r {
	case ReasonSettlement, ReasonLiquidation, ReasonFee:
		return r, nil
	default:
		return 0, fmt.Errorf("unknown transfer reason tag %d", tag)
	}
}

func (r TransferReason) String() string {
	switch r {
	case ReasonSettlement:
		return "settlement"
	case ReasonLiquidation:
		return "liquidation"
	case ReasonFee:
		return "fee"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// MarshalText renders the reason name into JSON payloads.
func (r TransferReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a reason name.
func (r *TransferReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "settlement":
		*r = ReasonSettlement
	case "liquidation":
		*r = ReasonLiquidation
	case "fee":
		*r = ReasonFee
	default:
		return fmt.Errorf("unknown transfer reason %q", text)
	}
	return nil
}

type Deposited struct {
	Owner     chain.Pubkey `json:"owner"`
	Vault     chain.Pubkey `json:"vault"`
	Amount    uint64       `json:"amount"`
	NewTotal  uint64       `json:"new_total"`
	Timestamp int64        `json:"timestamp"`
}

func (*Deposited) Type() Type { return TypeDeposited }

type Withdrawn struct {
	Owner          chain.Pubkey `json:"owner"`
	Vault          chain.Pubkey `json:"vault"`
	Amount         uint64       `json:"amount"`
	RemainingTotal uint64       `json:"remaining_total"`
	Timestamp      int64        `json:"timestamp"`
}

func (*Withdrawn) Type() Type { return TypeWithdrawn }

type Locked struct {
	Owner        chain.Pubkey `json:"owner"`
	Vault        chain.Pubkey `json:"vault"`
	Amount       uint64       `json:"amount"`
	NewLocked    uint64       `json:"new_locked"`
	NewAvailable uint64       `json:"new_available"`
	LockedBy     chain.Pubkey `json:"locked_by"`
	Timestamp    int64        `json:"timestamp"`
}

func (*Locked) Type() Type { return TypeLocked }

type Unlocked struct {
	Owner        chain.Pubkey `json:"owner"`
	Vault        chain.Pubkey `json:"vault"`
	Amount       uint64       `json:"amount"`
	NewLocked    uint64       `json:"new_locked"`
	NewAvailable uint64       `json:"new_available"`
	UnlockedBy   chain.Pubkey `json:"unlocked_by"`
	Timestamp    int64        `json:"timestamp"`
}

func (*Unlocked) Type() Type { return TypeUnlocked }

type Transferred struct {
	Source      chain.Pubkey   `json:"source"`
	Destination chain.Pubkey   `json:"destination"`
	Amount      uint64         `json:"amount"`
	Reason      TransferReason `json:"reason"`
	InitiatedBy chain.Pubkey   `json:"initiated_by"`
	Timestamp   int64          `json:"timestamp"`
}

func (*Transferred) Type() Type { return TypeTransferred }

type VaultCreated struct {
	Owner          chain.Pubkey `json:"owner"`
	Vault          chain.Pubkey `json:"vault"`
	CustodyAccount chain.Pubkey `json:"custody_account"`
	Timestamp      int64        `json:"timestamp"`
}

func (*VaultCreated) Type() Type { return TypeVaultCreated }
