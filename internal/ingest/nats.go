// Package ingest receives custody instructions over NATS JetStream and
// executes them on the program. This is the daemon's write surface; reads
// go through the HTTP façade.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/program"
	"CollateralVault/internal/token"
)

const (
	InstructionStream  = "VAULT_INSTRUCTIONS"
	InstructionSubject = "vault.instructions"

	FaucetStream  = "VAULT_FAUCET"
	FaucetSubject = "vault.faucet"
)

// Submission is the JSON wire form of one instruction. Data is the raw
// instruction bytes (discriminator + scalars), base64 in JSON.
type Submission struct {
	Data     []byte             `json:"data"`
	Accounts []SubmittedAccount `json:"accounts"`
}

type SubmittedAccount struct {
	Pubkey     chain.Pubkey `json:"pubkey"`
	IsSigner   bool         `json:"is_signer"`
	IsWritable bool         `json:"is_writable"`
}

// FaucetRequest mints devnet funds to an owner's token account.
type FaucetRequest struct {
	Owner  chain.Pubkey `json:"owner"`
	Amount uint64       `json:"amount"`
}

// Subscriber consumes instruction submissions and executes them. Messages
// are acked after execution; a rejected instruction is terminal (the error
// is logged and counted), never redelivered.
type Subscriber struct {
	js        jetstream.JetStream
	prog      *program.Program
	faucet    *token.Faucet // nil outside devnet
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, prog *program.Program, faucet *token.Faucet, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, prog: prog, faucet: faucet, log: log}
}

// Subscribe creates the durable consumers and starts consuming.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	if err := s.consume(ctx, InstructionStream, InstructionSubject+".>", "vault-executor", s.handleInstruction); err != nil {
		return err
	}
	if s.faucet != nil {
		if err := s.consume(ctx, FaucetStream, FaucetSubject, "vault-faucet", s.handleFaucet); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) consume(ctx context.Context, stream, subject, durable string, handler func(jetstream.Msg)) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	cc, err := consumer.Consume(handler)
	if err != nil {
		return fmt.Errorf("consume %s: %w", durable, err)
	}
	s.consumers = append(s.consumers, cc)
	s.log.Info().Str("subject", subject).Str("consumer", durable).Msg("subscribed")
	return nil
}

func (s *Subscriber) handleInstruction(msg jetstream.Msg) {
	defer msg.Ack()

	var sub Submission
	if err := json.Unmarshal(msg.Data(), &sub); err != nil {
		s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("malformed submission")
		return
	}

	ins := program.Instruction{
		Data:     sub.Data,
		Accounts: make([]program.AccountMeta, len(sub.Accounts)),
	}
	for i, a := range sub.Accounts {
		ins.Accounts[i] = program.AccountMeta{
			Pubkey:     a.Pubkey,
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		}
	}

	if err := s.prog.Execute(ins); err != nil {
		// Execution already counted the rejection; a retry would fail the
		// same way, so the message is still acked.
		s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("instruction rejected")
	}
}

func (s *Subscriber) handleFaucet(msg jetstream.Msg) {
	defer msg.Ack()

	var req FaucetRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		s.log.Warn().Err(err).Msg("malformed faucet request")
		return
	}
	addr, err := s.faucet.Mint(req.Owner, req.Amount)
	if err != nil {
		s.log.Warn().Err(err).Str("owner", req.Owner.String()).Msg("faucet mint failed")
		return
	}
	s.log.Info().
		Str("owner", req.Owner.String()).
		Str("account", addr.String()).
		Uint64("amount", req.Amount).
		Msg("faucet mint")
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
}

// EnsureStreams creates the inbound streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, withFaucet bool) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      InstructionStream,
			Subjects:  []string{InstructionSubject + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}
	if withFaucet {
		streams = append(streams, jetstream.StreamConfig{
			Name:      FaucetStream,
			Subjects:  []string{FaucetSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		})
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
