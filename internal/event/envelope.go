// Package event defines the structured records broadcast alongside every
// successful custody mutation. Downstream indexers key on the event name.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeRegistryCreated
	TypeDelegateAdded
	TypeDelegateRemoved
	TypePausedSet
	TypeVaultCreated
	TypeDeposited
	TypeWithdrawn
	TypeLocked
	TypeUnlocked
	TypeTransferred
)

// Event is the interface all custody event payloads implement.
type Event interface {
	// Type returns the discriminator
	Type() Type
}

// Envelope wraps a payload with its identity for publication: a fresh UUID,
// the event name, and the ledger timestamp of the instruction that emitted it.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Wrap builds an Envelope around ev with a freshly assigned ID.
func Wrap(ev Event, timestamp int64) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	return Envelope{
		ID:        uuid.New(),
		Name:      ev.Type().String(),
		Timestamp: timestamp,
		Payload:   payload,
	}, nil
}

var typeByName = func() map[string]Type {
	m := make(map[string]Type)
	for t := TypeRegistryCreated; t <= TypeTransferred; t++ {
		m[t.String()] = t
	}
	return m
}()

// TypeForName resolves an event name back to its Type. Unknown names map
// to TypeUnknown.
func TypeForName(name string) Type {
	return typeByName[name]
}

func (t Type) String() string {
	switch t {
	case TypeRegistryCreated:
		return "RegistryCreated"
	case TypeDelegateAdded:
		return "DelegateAdded"
	case TypeDelegateRemoved:
		return "DelegateRemoved"
	case TypePausedSet:
		return "PausedSet"
	case TypeVaultCreated:
		return "VaultCreated"
	case TypeDeposited:
		return "Deposited"
	case TypeWithdrawn:
		return "Withdrawn"
	case TypeLocked:
		return "Locked"
	case TypeUnlocked:
		return "Unlocked"
	case TypeTransferred:
		return "Transferred"
	default:
		return "Unknown"
	}
}

// Subject returns the publication subject suffix for the event name,
// e.g. "deposited" for vault.events.deposited.
func (t Type) Subject() string {
	switch t {
	case TypeRegistryCreated:
		return "registry_created"
	case TypeDelegateAdded:
		return "delegate_added"
	case TypeDelegateRemoved:
		return "delegate_removed"
	case TypePausedSet:
		return "paused_set"
	case TypeVaultCreated:
		return "vault_created"
	case TypeDeposited:
		return "deposited"
	case TypeWithdrawn:
		return "withdrawn"
	case TypeLocked:
		return "locked"
	case TypeUnlocked:
		return "unlocked"
	case TypeTransferred:
		return "transferred"
	default:
		return "unknown"
	}
}
