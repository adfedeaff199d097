package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CollateralVault/internal/event"
	"CollateralVault/internal/observability"
)

// Worker drains the event channel and batch-writes the event log and
// transaction history to Postgres. The feed is non-blocking on the program
// side (drop on full channel); the index is a cache of the authoritative
// account store and the reconciler repairs projections, so a dropped
// envelope costs history detail, never custody correctness.
type Worker struct {
	writer       *Writer
	input        <-chan event.Envelope
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	input <-chan event.Envelope,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming envelopes and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	eventBatch := make([]EventRow, 0, w.batchSize)
	txBatch := make([]TransactionRow, 0, w.batchSize*2)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(eventBatch) > 0 {
				if err := w.flush(context.Background(), eventBatch, txBatch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case env, ok := <-w.input:
			if !ok {
				if len(eventBatch) > 0 {
					if err := w.flush(context.Background(), eventBatch, txBatch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			eventBatch = append(eventBatch, EventRow{
				ID:        env.ID,
				Name:      env.Name,
				Payload:   env.Payload,
				Timestamp: env.Timestamp,
			})
			rows, err := transactionRows(env)
			if err != nil {
				w.log.Warn().Err(err).Str("event", env.Name).Msg("derive transaction rows")
			}
			txBatch = append(txBatch, rows...)

			if len(eventBatch) >= w.batchSize {
				w.flushWithRetry(ctx, eventBatch, txBatch)
				eventBatch = eventBatch[:0]
				txBatch = txBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(eventBatch) > 0 {
				w.flushWithRetry(ctx, eventBatch, txBatch)
				eventBatch = eventBatch[:0]
				txBatch = txBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or the context is cancelled; inserts are idempotent so a retried batch
// never duplicates rows.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, txs []TransactionRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("index flush retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), events, txs); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, events, txs)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("index flush succeeded after retries")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.IndexRetry.Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, events []EventRow, txs []TransactionRow) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		w.countError("write_events")
		return err
	}
	if err := w.writer.WriteTransactionBatch(ctx, tx, txs); err != nil {
		w.countError("write_transactions")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.IndexBatchDuration.Observe(time.Since(start).Seconds())
		w.metrics.IndexBatchSize.Observe(float64(len(events)))
		w.metrics.IndexEventsWritten.Add(float64(len(events)))
	}
	return nil
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.IndexErrors.WithLabelValues(kind).Inc()
	}
}

// transactionRows derives the per-vault history rows from one envelope.
// Admin and creation events produce none.
func transactionRows(env event.Envelope) ([]TransactionRow, error) {
	switch event.TypeForName(env.Name) {
	case event.TypeDeposited:
		var ev event.Deposited
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Name, err)
		}
		return []TransactionRow{{
			ID:           uuid.New(),
			EventID:      env.ID,
			VaultAddress: ev.Vault.String(),
			Kind:         "deposit",
			Amount:       ev.Amount,
			Timestamp:    ev.Timestamp,
		}}, nil

	case event.TypeWithdrawn:
		var ev event.Withdrawn
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Name, err)
		}
		return []TransactionRow{{
			ID:           uuid.New(),
			EventID:      env.ID,
			VaultAddress: ev.Vault.String(),
			Kind:         "withdraw",
			Amount:       ev.Amount,
			Timestamp:    ev.Timestamp,
		}}, nil

	case event.TypeLocked:
		var ev event.Locked
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Name, err)
		}
		return []TransactionRow{{
			ID:           uuid.New(),
			EventID:      env.ID,
			VaultAddress: ev.Vault.String(),
			Kind:         "lock",
			Amount:       ev.Amount,
			Timestamp:    ev.Timestamp,
		}}, nil

	case event.TypeUnlocked:
		var ev event.Unlocked
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Name, err)
		}
		return []TransactionRow{{
			ID:           uuid.New(),
			EventID:      env.ID,
			VaultAddress: ev.Vault.String(),
			Kind:         "unlock",
			Amount:       ev.Amount,
			Timestamp:    ev.Timestamp,
		}}, nil

	case event.TypeTransferred:
		var ev event.Transferred
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Name, err)
		}
		src := ev.Source.String()
		dst := ev.Destination.String()
		reason := ev.Reason.String()
		return []TransactionRow{
			{
				ID:           uuid.New(),
				EventID:      env.ID,
				VaultAddress: src,
				Kind:         "transfer_out",
				Amount:       ev.Amount,
				Counterparty: &dst,
				Reason:       &reason,
				Timestamp:    ev.Timestamp,
			},
			{
				ID:           uuid.New(),
				EventID:      env.ID,
				VaultAddress: dst,
				Kind:         "transfer_in",
				Amount:       ev.Amount,
				Counterparty: &src,
				Reason:       &reason,
				Timestamp:    ev.Timestamp,
			},
		}, nil

	default:
		return nil, nil
	}
}
