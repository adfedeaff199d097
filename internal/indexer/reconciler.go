package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/observability"
	"CollateralVault/internal/token"
	"CollateralVault/internal/vault"
)

// Reconciler periodically sweeps the account store, compares every vault's
// recorded total against its custody token balance and the TVL sum against
// the custody sum, refreshes the Postgres projections, and updates the
// custody gauges. Discrepancies are logged and counted, never auto-corrected.
type Reconciler struct {
	store    *chain.AccountStore
	writer   *Writer // nil when Postgres is disabled
	interval time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewReconciler(
	store *chain.AccountStore,
	writer *Writer,
	interval time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		writer:   writer,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass and returns the discrepancy count.
func (r *Reconciler) Sweep(ctx context.Context) int {
	start := time.Now()

	vaults := make(map[chain.Pubkey]*vault.Vault)
	tokens := make(map[chain.Pubkey]*token.Account)
	var registry *vault.Registry

	err := r.store.ForEach(func(addr chain.Pubkey, data []byte) error {
		if len(data) == 0 {
			return nil
		}
		switch data[0] {
		case vault.RecordTagVault:
			v, err := vault.DecodeVault(data)
			if err != nil {
				r.log.Error().Err(err).Str("address", addr.String()).Msg("corrupt vault record")
				return nil
			}
			vaults[addr] = v
		case vault.RegistryTagRegistry:
			reg, err := vault.DecodeRegistry(data)
			if err != nil {
				r.log.Error().Err(err).Str("address", addr.String()).Msg("corrupt registry record")
				return nil
			}
			registry = reg
		case token.RecordTagAccount:
			acc, err := token.DecodeAccount(data)
			if err != nil {
				r.log.Error().Err(err).Str("address", addr.String()).Msg("corrupt token record")
				return nil
			}
			tokens[addr] = acc
		}
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Msg("sweep account store")
		return 0
	}

	discrepancies := 0
	var tvl, custodySum uint64
	rows := make([]VaultRow, 0, len(vaults))

	for addr, v := range vaults {
		tvl += v.Total

		custody, ok := tokens[v.CustodyAccount]
		if !ok {
			discrepancies++
			r.log.Warn().
				Str("vault", addr.String()).
				Str("custody", v.CustodyAccount.String()).
				Msg("custody account missing")
		} else {
			custodySum += custody.Amount
			if custody.Amount != v.Total {
				discrepancies++
				r.log.Warn().
					Str("vault", addr.String()).
					Uint64("recorded_total", v.Total).
					Uint64("custody_balance", custody.Amount).
					Msg("vault total diverges from custody balance")
			}
		}

		rows = append(rows, VaultRow{
			VaultAddress:      addr.String(),
			Owner:             v.Owner.String(),
			CustodyAccount:    v.CustodyAccount.String(),
			Total:             v.Total,
			Locked:            v.Locked,
			Available:         v.Available,
			DepositedLifetime: v.DepositedLifetime,
			WithdrawnLifetime: v.WithdrawnLifetime,
			CreatedAt:         v.CreatedAt,
		})
	}

	if tvl != custodySum {
		r.log.Warn().
			Uint64("tvl", tvl).
			Uint64("custody_sum", custodySum).
			Msg("TVL diverges from custody sum")
	}

	if r.writer != nil {
		if err := r.writer.UpsertVaults(ctx, rows); err != nil {
			r.log.Error().Err(err).Msg("refresh vault projections")
			if r.metrics != nil {
				r.metrics.IndexErrors.WithLabelValues("upsert_vaults").Inc()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.ReconcileRuns.Inc()
		r.metrics.ReconcileDiscrepancies.Set(float64(discrepancies))
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		r.metrics.VaultsTotal.Set(float64(len(vaults)))
		r.metrics.TVL.Set(float64(tvl))
		if registry != nil {
			r.metrics.DelegateCount.Set(float64(len(registry.Delegates)))
			if registry.Paused {
				r.metrics.RegistryPaused.Set(1)
			} else {
				r.metrics.RegistryPaused.Set(0)
			}
		}
	}

	r.log.Debug().
		Int("vaults", len(vaults)).
		Uint64("tvl", tvl).
		Int("discrepancies", discrepancies).
		Dur("took", time.Since(start)).
		Msg("reconciliation sweep")
	return discrepancies
}
