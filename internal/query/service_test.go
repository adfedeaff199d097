package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/indexer"
	"CollateralVault/internal/testutil"
)

func seedProjections(t *testing.T, w *indexer.Writer) (owner string, vaultAddr string) {
	t.Helper()
	ctx := context.Background()

	owner = chain.DeriveID("query-owner").String()
	vaultAddr = chain.DeriveID("query-vault").String()

	rows := []indexer.VaultRow{
		{
			VaultAddress:      vaultAddr,
			Owner:             owner,
			CustodyAccount:    chain.DeriveID("query-custody").String(),
			Total:             1000,
			Locked:            200,
			Available:         800,
			DepositedLifetime: 1500,
			WithdrawnLifetime: 500,
			CreatedAt:         1_700_000_000,
		},
		{
			VaultAddress:      chain.DeriveID("other-vault").String(),
			Owner:             chain.DeriveID("other-owner").String(),
			CustodyAccount:    chain.DeriveID("other-custody").String(),
			Total:             3000,
			Available:         3000,
			DepositedLifetime: 3000,
			CreatedAt:         1_700_000_100,
		},
	}
	if err := w.UpsertVaults(ctx, rows); err != nil {
		t.Fatalf("UpsertVaults: %v", err)
	}
	return owner, vaultAddr
}

func TestVaultByOwner(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	owner, vaultAddr := seedProjections(t, indexer.NewWriter(db))
	s := NewService(db)

	v, err := s.VaultByOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("VaultByOwner: %v", err)
	}
	if v.VaultAddress != vaultAddr || v.Total != 1000 || v.Locked != 200 || v.Available != 800 {
		t.Errorf("view = %+v", v)
	}

	_, err = s.VaultByOwner(context.Background(), "no-such-owner")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestVaultsOrderedByTotal(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedProjections(t, indexer.NewWriter(db))
	s := NewService(db)

	vaults, err := s.Vaults(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Vaults: %v", err)
	}
	if len(vaults) != 2 {
		t.Fatalf("got %d vaults, want 2", len(vaults))
	}
	if vaults[0].Total < vaults[1].Total {
		t.Errorf("vaults not ordered by total: %d before %d", vaults[0].Total, vaults[1].Total)
	}

	page, err := s.Vaults(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Vaults page 2: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("got %d vaults on page 2, want 1", len(page))
	}
}

func TestTVL(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedProjections(t, indexer.NewWriter(db))
	s := NewService(db)

	view, err := s.TVL(context.Background())
	if err != nil {
		t.Fatalf("TVL: %v", err)
	}
	if view.TVL != 4000 || view.VaultCount != 2 {
		t.Errorf("view = %+v, want tvl=4000 count=2", view)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	w := indexer.NewWriter(db)
	owner, vaultAddr := seedProjections(t, w)
	s := NewService(db)
	ctx := context.Background()

	eventID := uuid.New()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	events := []indexer.EventRow{{ID: eventID, Name: "Deposited", Payload: []byte(`{}`), Timestamp: 1}}
	if err := w.WriteEventBatch(ctx, tx, events); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}
	txRows := []indexer.TransactionRow{
		{ID: uuid.New(), EventID: eventID, VaultAddress: vaultAddr, Kind: "deposit", Amount: 100, Timestamp: 10},
		{ID: uuid.New(), EventID: eventID, VaultAddress: vaultAddr, Kind: "withdraw", Amount: 40, Timestamp: 20},
	}
	if err := w.WriteTransactionBatch(ctx, tx, txRows); err != nil {
		t.Fatalf("WriteTransactionBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	history, err := s.Transactions(ctx, owner, 10)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d rows, want 2", len(history))
	}
	if history[0].Kind != "withdraw" || history[1].Kind != "deposit" {
		t.Errorf("history not newest-first: %+v", history)
	}
}
