package event

import "CollateralVault/internal/chain"

type RegistryCreated struct {
	Admin     chain.Pubkey `json:"admin"`
	Registry  chain.Pubkey `json:"registry"`
	Timestamp int64        `json:"timestamp"`
}

func (*RegistryCreated) Type() Type { return TypeRegistryCreated }

type DelegateAdded struct {
	Delegate      chain.Pubkey `json:"delegate"`
	DelegateCount int          `json:"delegate_count"`
	Timestamp     int64        `json:"timestamp"`
}

func (*DelegateAdded) Type() Type { return TypeDelegateAdded }

type DelegateRemoved struct {
	Delegate      chain.Pubkey `json:"delegate"`
	DelegateCount int          `json:"delegate_count"`
	Timestamp     int64        `json:"timestamp"`
}

func (*DelegateRemoved) Type() Type { return TypeDelegateRemoved }

type PausedSet struct {
	Paused    bool  `json:"paused"`
	Timestamp int64 `json:"timestamp"`
}

func (*PausedSet) Type() Type { return TypePausedSet }
