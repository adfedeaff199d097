package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CollateralVault/internal/event"
	"CollateralVault/internal/observability"
)

// StreamName is the JetStream stream carrying custody events.
const StreamName = "VAULT_EVENTS"

// Publisher fans committed custody events out to NATS JetStream on
// vault.events.{event_name}. Downstream gateways (websocket fan-out,
// risk engines) consume from the stream; a publish failure is non-fatal
// because consumers can always fall back to the Postgres event log.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan event.Envelope
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPublisher(
	js jetstream.JetStream,
	input <-chan event.Envelope,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Publisher {
	return &Publisher{js: js, input: input, metrics: metrics, log: log}
}

// Run drains the input channel until ctx is cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				p.log.Warn().Err(err).Str("event", env.Name).Str("id", env.ID.String()).Msg("outbound publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := "vault.events." + event.TypeForName(env.Name).Subject()
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.PublishedEvents.WithLabelValues(subject).Inc()
	}
	return nil
}

// EnsureStream creates or updates the custody event stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"vault.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	return nil
}
