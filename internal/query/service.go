// Package query serves reads over the indexer's Postgres projections.
// Responses reflect the last reconciliation sweep, not the live account
// store; the HTTP façade is a cache, never the source of truth.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// Service runs read queries against the index database.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// VaultView is one vault projection row.
type VaultView struct {
	VaultAddress      string `json:"vault_address"`
	Owner             string `json:"owner"`
	CustodyAccount    string `json:"custody_account"`
	Total             uint64 `json:"total"`
	Locked            uint64 `json:"locked"`
	Available         uint64 `json:"available"`
	DepositedLifetime uint64 `json:"deposited_lifetime"`
	WithdrawnLifetime uint64 `json:"withdrawn_lifetime"`
	CreatedAt         int64  `json:"created_at"`
}

// TransactionView is one history row for a vault.
type TransactionView struct {
	Kind         string  `json:"kind"`
	Amount       uint64  `json:"amount"`
	Counterparty *string `json:"counterparty,omitempty"`
	Reason       *string `json:"reason,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// TVLView is the exchange-wide rollup.
type TVLView struct {
	TVL        uint64 `json:"tvl"`
	VaultCount int    `json:"vault_count"`
}

const vaultColumns = `vault_address, owner, custody_account, total, locked, available,
	deposited_lifetime, withdrawn_lifetime, created_at`

func scanVault(row interface{ Scan(...interface{}) error }) (VaultView, error) {
	var v VaultView
	var total, locked, available, deposited, withdrawn int64
	err := row.Scan(
		&v.VaultAddress, &v.Owner, &v.CustodyAccount,
		&total, &locked, &available, &deposited, &withdrawn, &v.CreatedAt,
	)
	if err != nil {
		return v, err
	}
	v.Total = uint64(total)
	v.Locked = uint64(locked)
	v.Available = uint64(available)
	v.DepositedLifetime = uint64(deposited)
	v.WithdrawnLifetime = uint64(withdrawn)
	return v, nil
}

// VaultByOwner returns the vault projection for one owner.
func (s *Service) VaultByOwner(ctx context.Context, owner string) (*VaultView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vaultColumns+` FROM vault_index.vaults WHERE owner = $1`, owner)
	v, err := scanVault(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vault by owner: %w", err)
	}
	return &v, nil
}

// Vaults lists vault projections ordered by total, largest first.
func (s *Service) Vaults(ctx context.Context, limit, offset int) ([]VaultView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vaultColumns+` FROM vault_index.vaults
		 ORDER BY total DESC, vault_address
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query vaults: %w", err)
	}
	defer rows.Close()

	var out []VaultView
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// TVL returns the sum of vault totals and the vault count.
func (s *Service) TVL(ctx context.Context) (TVLView, error) {
	var view TVLView
	var tvl int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM vault_index.vaults`,
	).Scan(&tvl, &view.VaultCount)
	if err != nil {
		return view, fmt.Errorf("query tvl: %w", err)
	}
	view.TVL = uint64(tvl)
	return view, nil
}

// Transactions lists an owner's balance history, newest first.
func (s *Service) Transactions(ctx context.Context, owner string, limit int) ([]TransactionView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.kind, t.amount, t.counterparty, t.reason, t.timestamp
		 FROM vault_index.transactions t
		 JOIN vault_index.vaults v ON v.vault_address = t.vault_address
		 WHERE v.owner = $1
		 ORDER BY t.timestamp DESC, t.id
		 LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionView
	for rows.Next() {
		var t TransactionView
		var amount int64
		if err := rows.Scan(&t.Kind, &amount, &t.Counterparty, &t.Reason, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Amount = uint64(amount)
		out = append(out, t)
	}
	return out, rows.Err()
}
