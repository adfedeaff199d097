package indexer

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/testutil"
)

func TestWriteEventBatchIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	w := NewWriter(db)
	ctx := context.Background()

	rows := []EventRow{
		{ID: uuid.New(), Name: "Deposited", Payload: []byte(`{"amount":100}`), Timestamp: 1},
		{ID: uuid.New(), Name: "Withdrawn", Payload: []byte(`{"amount":50}`), Timestamp: 2},
	}

	// Writing the same batch twice must not duplicate rows.
	for i := 0; i < 2; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := w.WriteEventBatch(ctx, tx, rows); err != nil {
			t.Fatalf("WriteEventBatch: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM vault_index.events").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d event rows, want 2", count)
	}
}

func TestWriteTransactionBatch(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	w := NewWriter(db)
	ctx := context.Background()

	eventID := uuid.New()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	events := []EventRow{{ID: eventID, Name: "Transferred", Payload: []byte(`{}`), Timestamp: 1}}
	if err := w.WriteEventBatch(ctx, tx, events); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}

	counterparty := chain.DeriveID("dst").String()
	reason := "settlement"
	txRows := []TransactionRow{
		{
			ID:           uuid.New(),
			EventID:      eventID,
			VaultAddress: chain.DeriveID("src").String(),
			Kind:         "transfer_out",
			Amount:       500,
			Counterparty: &counterparty,
			Reason:       &reason,
			Timestamp:    1,
		},
	}
	if err := w.WriteTransactionBatch(ctx, tx, txRows); err != nil {
		t.Fatalf("WriteTransactionBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var kind string
	var gotCounterparty *string
	err = db.QueryRow(
		"SELECT kind, counterparty FROM vault_index.transactions WHERE event_id = $1", eventID,
	).Scan(&kind, &gotCounterparty)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if kind != "transfer_out" {
		t.Errorf("kind = %q, want transfer_out", kind)
	}
	if gotCounterparty == nil || *gotCounterparty != counterparty {
		t.Errorf("counterparty = %v, want %s", gotCounterparty, counterparty)
	}
}

func TestUpsertVaultsRefreshesBalances(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	w := NewWriter(db)
	ctx := context.Background()

	row := VaultRow{
		VaultAddress:      chain.DeriveID("vault").String(),
		Owner:             chain.DeriveID("owner").String(),
		CustodyAccount:    chain.DeriveID("custody").String(),
		Total:             100,
		Available:         100,
		DepositedLifetime: 100,
		CreatedAt:         1,
	}
	if err := w.UpsertVaults(ctx, []VaultRow{row}); err != nil {
		t.Fatalf("UpsertVaults: %v", err)
	}

	row.Total = 250
	row.Available = 250
	row.DepositedLifetime = 250
	if err := w.UpsertVaults(ctx, []VaultRow{row}); err != nil {
		t.Fatalf("UpsertVaults update: %v", err)
	}

	var count int
	var total int64
	err := db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(total), 0) FROM vault_index.vaults",
	).Scan(&count, &total)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if count != 1 || total != 250 {
		t.Errorf("got count=%d total=%d, want 1/250", count, total)
	}
}
