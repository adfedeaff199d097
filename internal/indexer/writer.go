// Package indexer is the off-chain companion: it caches custody state in
// Postgres (event log, transaction history, vault projections), fans events
// out to NATS, and runs the reconciliation sweep.
package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Writer writes index rows to Postgres using multi-row INSERT. Inserts are
// idempotent (ON CONFLICT DO NOTHING keyed on the envelope ID), so replays
// after a crash or a NATS redelivery are harmless.
type Writer struct {
	db *sql.DB
}

// EventRow is one row in vault_index.events.
type EventRow struct {
	ID        uuid.UUID
	Name      string
	Payload   []byte // JSON-encoded event payload
	Timestamp int64
}

// TransactionRow is one row in vault_index.transactions: a per-vault view
// of a balance mutation. Transfers produce two rows, one per side.
type TransactionRow struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	VaultAddress string
	Kind         string
	Amount       uint64
	Counterparty *string
	Reason       *string
	Timestamp    int64
}

// VaultRow is the projection of one vault, refreshed by the reconciler.
type VaultRow struct {
	VaultAddress      string
	Owner             string
	CustodyAccount    string
	Total             uint64
	Locked            uint64
	Available         uint64
	DepositedLifetime uint64
	WithdrawnLifetime uint64
	CreatedAt         int64
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// DB exposes the handle for transaction control and queries.
func (w *Writer) DB() *sql.DB { return w.db }

// WriteEventBatch inserts a batch into vault_index.events inside tx.
func (w *Writer) WriteEventBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault_index.events
		(id, name, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)

	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, r.ID, r.Name, r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteTransactionBatch inserts a batch into vault_index.transactions inside tx.
func (w *Writer) WriteTransactionBatch(ctx context.Context, tx *sql.Tx, rows []TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault_index.transactions
		(id, event_id, vault_address, kind, amount, counterparty, reason, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)

	for i, r := range rows {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			r.ID, r.EventID, r.VaultAddress, r.Kind,
			int64(r.Amount), r.Counterparty, r.Reason, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertVaults refreshes the vault projection rows.
func (w *Writer) UpsertVaults(ctx context.Context, rows []VaultRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault_index.vaults
		(vault_address, owner, custody_account, total, locked, available,
		 deposited_lifetime, withdrawn_lifetime, created_at, updated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)

	for i, r := range rows {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			r.VaultAddress, r.Owner, r.CustodyAccount,
			int64(r.Total), int64(r.Locked), int64(r.Available),
			int64(r.DepositedLifetime), int64(r.WithdrawnLifetime), r.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (vault_address) DO UPDATE SET
		total = EXCLUDED.total,
		locked = EXCLUDED.locked,
		available = EXCLUDED.available,
		deposited_lifetime = EXCLUDED.deposited_lifetime,
		withdrawn_lifetime = EXCLUDED.withdrawn_lifetime,
		updated_at = NOW()`

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
