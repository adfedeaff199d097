package program

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/event"
	"CollateralVault/internal/observability"
	"CollateralVault/internal/token"
	"CollateralVault/internal/vault"
)

// Emitter receives the envelopes of committed instructions. Implementations
// must not block for long; they run on the executing goroutine after commit.
type Emitter interface {
	Emit(env event.Envelope)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(env event.Envelope)

func (f EmitterFunc) Emit(env event.Envelope) { f(env) }

type nopEmitter struct{}

func (nopEmitter) Emit(event.Envelope) {}

// MultiEmitter fans one envelope out to several sinks in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(env event.Envelope) {
	for _, e := range m {
		e.Emit(env)
	}
}

// Config assembles a Program.
type Config struct {
	ID           chain.Pubkey
	TokenProgram chain.Pubkey
	Mint         chain.Pubkey
	Store        *chain.AccountStore
	Clock        chain.Clock
	Emitter      Emitter
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
}

// Program executes custody instructions against the account store. It owns
// the per-account lock discipline: two instructions sharing any account are
// totally ordered, disjoint ones run in parallel.
type Program struct {
	id           chain.Pubkey
	tokenProgram chain.Pubkey
	mint         chain.Pubkey

	registryAddr chain.Pubkey
	registryBump uint8

	store   *chain.AccountStore
	locks   *chain.LockTable
	clock   chain.Clock
	emitter Emitter
	log     zerolog.Logger
	metrics *observability.Metrics
}

// New builds a Program. Clock defaults to the system clock, Emitter to a
// no-op sink. Metrics may be nil (tests).
func New(cfg Config) (*Program, error) {
	if cfg.Store == nil {
		return nil, errors.New("program: account store is required")
	}
	regAddr, regBump, err := vault.DeriveRegistryAddress(cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("derive registry address: %w", err)
	}

	p := &Program{
		id:           cfg.ID,
		tokenProgram: cfg.TokenProgram,
		mint:         cfg.Mint,
		registryAddr: regAddr,
		registryBump: regBump,
		store:        cfg.Store,
		locks:        chain.NewLockTable(),
		clock:        cfg.Clock,
		emitter:      cfg.Emitter,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
	}
	if p.clock == nil {
		p.clock = chain.SystemClock{}
	}
	if p.emitter == nil {
		p.emitter = nopEmitter{}
	}
	return p, nil
}

// ID returns the program identifier.
func (p *Program) ID() chain.Pubkey { return p.id }

// Mint returns the custody asset mint.
func (p *Program) Mint() chain.Pubkey { return p.mint }

// TokenProgram returns the token program identifier.
func (p *Program) TokenProgram() chain.Pubkey { return p.tokenProgram }

// RegistryAddress returns the singleton registry address.
func (p *Program) RegistryAddress() chain.Pubkey { return p.registryAddr }

// txn is the staging area of one instruction: reads overlay the store with
// pending writes, and nothing reaches the store until Execute commits.
type txn struct {
	store  *chain.AccountStore
	writes map[chain.Pubkey][]byte
	events []event.Event
	now    int64
}

func (t *txn) get(addr chain.Pubkey) ([]byte, bool) {
	if data, ok := t.writes[addr]; ok {
		return data, true
	}
	return t.store.Get(addr)
}

func (t *txn) has(addr chain.Pubkey) bool {
	if _, ok := t.writes[addr]; ok {
		return true
	}
	return t.store.Has(addr)
}

func (t *txn) put(addr chain.Pubkey, data []byte) {
	t.writes[addr] = data
}

func (t *txn) emit(ev event.Event) {
	t.events = append(t.events, ev)
}

// Execute runs one instruction to completion: decode, validate the account
// layout, lock the account set, dispatch, and commit. On any error no
// account changes and no event is emitted.
func (p *Program) Execute(ins Instruction) error {
	start := time.Now()

	op, params, err := DecodeData(ins.Data)
	if err != nil {
		p.reject(op, "runtime")
		return err
	}
	if err := validateAccounts(op, ins.Accounts); err != nil {
		p.reject(op, "runtime")
		return err
	}

	addrs := make([]chain.Pubkey, len(ins.Accounts))
	for i, a := range ins.Accounts {
		addrs[i] = a.Pubkey
	}
	release := p.locks.Acquire(addrs...)
	defer release()

	tx := &txn{
		store:  p.store,
		writes: make(map[chain.Pubkey][]byte),
		now:    p.clock.Unix(),
	}

	if err := p.dispatch(op, params, ins.Accounts, tx); err != nil {
		err = taggedErr(op, err)
		var ve *vault.Error
		if errors.As(err, &ve) {
			p.reject(op, ve.Code.String())
			p.log.Debug().Str("instruction", op.String()).Str("code", ve.Code.String()).Msg("instruction rejected")
		} else {
			p.reject(op, "runtime")
			p.log.Debug().Str("instruction", op.String()).Err(err).Msg("instruction rejected")
		}
		return err
	}

	if err := p.store.Apply(tx.writes); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	for _, ev := range tx.events {
		env, err := event.Wrap(ev, tx.now)
		if err != nil {
			p.log.Error().Err(err).Str("event", ev.Type().String()).Msg("wrap event")
			continue
		}
		p.emitter.Emit(env)
		if p.metrics != nil {
			p.metrics.EventsEmitted.WithLabelValues(ev.Type().String()).Inc()
		}
	}

	if p.metrics != nil {
		p.metrics.InstructionsApplied.WithLabelValues(op.String()).Inc()
		p.metrics.InstructionDuration.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	}
	p.log.Info().
		Str("instruction", op.String()).
		Int("accounts", len(ins.Accounts)).
		Dur("took", time.Since(start)).
		Msg("instruction applied")
	return nil
}

func (p *Program) dispatch(op Op, params Params, accs []AccountMeta, tx *txn) error {
	switch op {
	case OpCreateRegistry:
		return p.createRegistry(tx, accs)
	case OpAddDelegate:
		return p.addDelegate(tx, accs, params.Principal)
	case OpRemoveDelegate:
		return p.removeDelegate(tx, accs, params.Principal)
	case OpSetPaused:
		return p.setPaused(tx, accs, params.Paused)
	case OpCreateVault:
		return p.createVault(tx, accs)
	case OpDeposit:
		return p.deposit(tx, accs, params.Amount)
	case OpWithdraw:
		return p.withdraw(tx, accs, params.Amount)
	case OpLock:
		return p.lock(tx, accs, params.Amount)
	case OpUnlock:
		return p.unlock(tx, accs, params.Amount)
	case OpTransfer:
		return p.transfer(tx, accs, params.Amount, params.Reason)
	default:
		return ErrUnknownInstruction
	}
}

func (p *Program) reject(op Op, code string) {
	if p.metrics != nil {
		p.metrics.InstructionsRejected.WithLabelValues(op.String(), code).Inc()
	}
}

// taggedErr stamps custody errors with the instruction name. Runtime-level
// errors pass through untouched.
func taggedErr(op Op, err error) error {
	var ve *vault.Error
	if errors.As(err, &ve) {
		return &vault.Error{Code: ve.Code, Op: op.String()}
	}
	return err
}

// assertInvariants panics on accounting corruption. A violated invariant
// after a successful transition means the store can no longer be trusted.
func assertInvariants(v *vault.Vault) {
	if err := v.CheckInvariants(); err != nil {
		panic("FATAL: custody invariant violated: " + err.Error())
	}
}

func (p *Program) checkRegistryAccount(addr chain.Pubkey) error {
	if addr != p.registryAddr {
		return fmt.Errorf("%w: registry account is %s, want %s", ErrBadAccountList, addr, p.registryAddr)
	}
	return nil
}

// registry loads the singleton. Absence is a runtime-level failure; every
// instruction except create_registry requires an initialized registry.
func (p *Program) registry(tx *txn) (*vault.Registry, error) {
	data, ok := tx.get(p.registryAddr)
	if !ok {
		return nil, errors.New("registry not initialized")
	}
	reg, err := vault.DecodeRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return reg, nil
}

func (p *Program) vaultAt(tx *txn, addr chain.Pubkey) (*vault.Vault, error) {
	data, ok := tx.get(addr)
	if !ok {
		return nil, vault.ErrVaultNotFound
	}
	v, err := vault.DecodeVault(data)
	if err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", addr, err)
	}
	return v, nil
}

func (p *Program) tokenAt(tx *txn, addr chain.Pubkey) (*token.Account, error) {
	data, ok := tx.get(addr)
	if !ok {
		return nil, fmt.Errorf("token account %s does not exist", addr)
	}
	acc, err := token.DecodeAccount(data)
	if err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", addr, err)
	}
	return acc, nil
}

func (p *Program) createRegistry(tx *txn, accs []AccountMeta) error {
	admin := accs[0].Pubkey
	if err := p.checkRegistryAccount(accs[1].Pubkey); err != nil {
		return err
	}
	if tx.has(p.registryAddr) {
		return errors.New("registry already initialized")
	}

	reg := &vault.Registry{
		Admin:     admin,
		UpdatedAt: tx.now,
		Bump:      p.registryBump,
	}
	tx.put(p.registryAddr, reg.Encode())
	tx.emit(&event.RegistryCreated{Admin: admin, Registry: p.registryAddr, Timestamp: tx.now})
	return nil
}

func (p *Program) adminRegistry(tx *txn, accs []AccountMeta) (*vault.Registry, error) {
	if err := p.checkRegistryAccount(accs[1].Pubkey); err != nil {
		return nil, err
	}
	reg, err := p.registry(tx)
	if err != nil {
		return nil, err
	}
	if accs[0].Pubkey != reg.Admin {
		return nil, vault.ErrNotAdmin
	}
	return reg, nil
}

func (p *Program) addDelegate(tx *txn, accs []AccountMeta, delegate chain.Pubkey) error {
	reg, err := p.adminRegistry(tx, accs)
	if err != nil {
		return err
	}
	if err := reg.AddDelegate(delegate); err != nil {
		return err
	}
	reg.UpdatedAt = tx.now
	tx.put(p.registryAddr, reg.Encode())
	tx.emit(&event.DelegateAdded{Delegate: delegate, DelegateCount: len(reg.Delegates), Timestamp: tx.now})
	return nil
}

func (p *Program) removeDelegate(tx *txn, accs []AccountMeta, delegate chain.Pubkey) error {
	reg, err := p.adminRegistry(tx, accs)
	if err != nil {
		return err
	}
	if err := reg.RemoveDelegate(delegate); err != nil {
		return err
	}
	reg.UpdatedAt = tx.now
	tx.put(p.registryAddr, reg.Encode())
	tx.emit(&event.DelegateRemoved{Delegate: delegate, DelegateCount: len(reg.Delegates), Timestamp: tx.now})
	return nil
}

func (p *Program) setPaused(tx *txn, accs []AccountMeta, paused bool) error {
	reg, err := p.adminRegistry(tx, accs)
	if err != nil {
		return err
	}
	reg.Paused = paused
	reg.UpdatedAt = tx.now
	tx.put(p.registryAddr, reg.Encode())
	tx.emit(&event.PausedSet{Paused: paused, Timestamp: tx.now})
	return nil
}

func (p *Program) createVault(tx *txn, accs []AccountMeta) error {
	owner := accs[0].Pubkey
	if err := p.checkRegistryAccount(accs[3].Pubkey); err != nil {
		return err
	}
	if !tx.has(p.registryAddr) {
		return errors.New("registry not initialized")
	}

	vaultAddr, bump, err := vault.DeriveAddress(p.id, owner)
	if err != nil {
		return fmt.Errorf("derive vault address: %w", err)
	}
	if accs[1].Pubkey != vaultAddr {
		return fmt.Errorf("%w: vault account is %s, want %s", ErrBadAccountList, accs[1].Pubkey, vaultAddr)
	}
	if tx.has(vaultAddr) {
		return vault.ErrVaultAlreadyExists
	}

	custodyAddr, _, err := token.DeriveAccountAddress(p.tokenProgram, p.mint, vaultAddr)
	if err != nil {
		return fmt.Errorf("derive custody address: %w", err)
	}
	if accs[2].Pubkey != custodyAddr {
		return fmt.Errorf("%w: custody account is %s, want %s", ErrBadAccountList, accs[2].Pubkey, custodyAddr)
	}
	if tx.has(custodyAddr) {
		existing, err := p.tokenAt(tx, custodyAddr)
		if err != nil {
			return err
		}
		if existing.Mint != p.mint || existing.Owner != vaultAddr {
			return fmt.Errorf("custody account %s exists with wrong mint or owner", custodyAddr)
		}
	} else {
		custody := &token.Account{Mint: p.mint, Owner: vaultAddr}
		tx.put(custodyAddr, custody.Encode())
	}

	v := &vault.Vault{
		Owner:          owner,
		CustodyAccount: custodyAddr,
		CreatedAt:      tx.now,
		Bump:           bump,
	}
	tx.put(vaultAddr, v.Encode())
	tx.emit(&event.VaultCreated{Owner: owner, Vault: vaultAddr, CustodyAccount: custodyAddr, Timestamp: tx.now})
	return nil
}

func (p *Program) deposit(tx *txn, accs []AccountMeta, amount uint64) error {
	signer := accs[0].Pubkey
	vaultAddr := accs[1].Pubkey
	if err := p.checkRegistryAccount(accs[2].Pubkey); err != nil {
		return err
	}

	reg, err := p.registry(tx)
	if err != nil {
		return err
	}
	v, err := p.vaultAt(tx, vaultAddr)
	if err != nil {
		return err
	}
	if signer != v.Owner {
		return vault.ErrUnauthorized
	}
	if reg.Paused {
		return vault.ErrPaused
	}
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	if accs[4].Pubkey != v.CustodyAccount {
		return fmt.Errorf("%w: custody account is %s, want %s", ErrBadAccountList, accs[4].Pubkey, v.CustodyAccount)
	}
	src, err := p.tokenAt(tx, accs[3].Pubkey)
	if err != nil {
		return err
	}
	custody, err := p.tokenAt(tx, accs[4].Pubkey)
	if err != nil {
		return err
	}
	if src.Mint != p.mint || custody.Mint != p.mint {
		return vault.ErrInvalidAssetMint
	}

	if err := token.AuthorizeOwner(src, signer); err != nil {
		return err
	}
	if err := token.Transfer(src, custody, amount); err != nil {
		return err
	}

	if err := v.ApplyDeposit(amount); err != nil {
		return err
	}
	assertInvariants(v)

	tx.put(accs[3].Pubkey, src.Encode())
	tx.put(accs[4].Pubkey, custody.Encode())
	tx.put(vaultAddr, v.Encode())
	tx.emit(&event.Deposited{
		Owner:     v.Owner,
		Vault:     vaultAddr,
		Amount:    amount,
		NewTotal:  v.Total,
		Timestamp: tx.now,
	})
	return nil
}

func (p *Program) withdraw(tx *txn, accs []AccountMeta, amount uint64) error {
	signer := accs[0].Pubkey
	vaultAddr := accs[1].Pubkey
	if err := p.checkRegistryAccount(accs[2].Pubkey); err != nil {
		return err
	}

	reg, err := p.registry(tx)
	if err != nil {
		return err
	}
	v, err := p.vaultAt(tx, vaultAddr)
	if err != nil {
		return err
	}
	if signer != v.Owner {
		return vault.ErrUnauthorized
	}
	if reg.Paused {
		return vault.ErrPaused
	}
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	if amount > v.Available {
		return vault.ErrInsufficientAvailable
	}
	if accs[4].Pubkey != v.CustodyAccount {
		return fmt.Errorf("%w: custody account is %s, want %s", ErrBadAccountList, accs[4].Pubkey, v.CustodyAccount)
	}
	dst, err := p.tokenAt(tx, accs[3].Pubkey)
	if err != nil {
		return err
	}
	custody, err := p.tokenAt(tx, accs[4].Pubkey)
	if err != nil {
		return err
	}
	if dst.Mint != p.mint || custody.Mint != p.mint {
		return vault.ErrInvalidAssetMint
	}

	// Outbound custody movement is program-signed: replay the vault's
	// derivation seeds, never a private key.
	if err := token.AuthorizeSeeds(custody, v.SigningSeeds(), p.id); err != nil {
		return err
	}
	if err := token.Transfer(custody, dst, amount); err != nil {
		return err
	}

	if err := v.ApplyWithdraw(amount); err != nil {
		return err
	}
	assertInvariants(v)

	tx.put(accs[3].Pubkey, dst.Encode())
	tx.put(accs[4].Pubkey, custody.Encode())
	tx.put(vaultAddr, v.Encode())
	tx.emit(&event.Withdrawn{
		Owner:          v.Owner,
		Vault:          vaultAddr,
		Amount:         amount,
		RemainingTotal: v.Total,
		Timestamp:      tx.now,
	})
	return nil
}

func (p *Program) lock(tx *txn, accs []AccountMeta, amount uint64) error {
	signer := accs[0].Pubkey
	vaultAddr := accs[1].Pubkey
	if err := p.checkRegistryAccount(accs[2].Pubkey); err != nil {
		return err
	}

	reg, err := p.registry(tx)
	if err != nil {
		return err
	}
	if !reg.IsDelegate(signer) {
		return vault.ErrUnauthorizedDelegate
	}
	if reg.Paused {
		return vault.ErrPaused
	}
	v, err := p.vaultAt(tx, vaultAddr)
	if err != nil {
		return err
	}
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	if amount > v.Available {
		return vault.ErrInsufficientAvailable
	}

	if err := v.ApplyLock(amount); err != nil {
		return err
	}
	assertInvariants(v)

	tx.put(vaultAddr, v.Encode())
	tx.emit(&event.Locked{
		Owner:        v.Owner,
		Vault:        vaultAddr,
		Amount:       amount,
		NewLocked:    v.Locked,
		NewAvailable: v.Available,
		LockedBy:     signer,
		Timestamp:    tx.now,
	})
	return nil
}

func (p *Program) unlock(tx *txn, accs []AccountMeta, amount uint64) error {
	signer := accs[0].Pubkey
	vaultAddr := accs[1].Pubkey
	if err := p.checkRegistryAccount(accs[2].Pubkey); err != nil {
		return err
	}

	reg, err := p.registry(tx)
	if err != nil {
		return err
	}
	if !reg.IsDelegate(signer) {
		return vault.ErrUnauthorizedDelegate
	}
	if reg.Paused {
		return vault.ErrPaused
	}
	v, err := p.vaultAt(tx, vaultAddr)
	if err != nil {
		return err
	}
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	if amount > v.Locked {
		return vault.ErrInsufficientLocked
	}

	if err := v.ApplyUnlock(amount); err != nil {
		return err
	}
	assertInvariants(v)

	tx.put(vaultAddr, v.Encode())
	tx.emit(&event.Unlocked{
		Owner:        v.Owner,
		Vault:        vaultAddr,
		Amount:       amount,
		NewLocked:    v.Locked,
		NewAvailable: v.Available,
		UnlockedBy:   signer,
		Timestamp:    tx.now,
	})
	return nil
}

func (p *Program) transfer(tx *txn, accs []AccountMeta, amount uint64, reason event.TransferReason) error {
	signer := accs[0].Pubkey
	srcAddr := accs[1].Pubkey
	dstAddr := accs[2].Pubkey
	if err := p.checkRegistryAccount(accs[5].Pubkey); err != nil {
		return err
	}

	reg, err := p.registry(tx)
	if err != nil {
		return err
	}
	if !reg.IsDelegate(signer) {
		return vault.ErrUnauthorizedDelegate
	}
	if reg.Paused {
		return vault.ErrPaused
	}
	if amount == 0 {
		return vault.ErrInvalidAmount
	}
	// Self-transfer is input-invalid: the two-vault transition is undefined
	// on a single vault.
	if srcAddr == dstAddr {
		return vault.ErrInvalidAmount
	}

	src, err := p.vaultAt(tx, srcAddr)
	if err != nil {
		return err
	}
	dst, err := p.vaultAt(tx, dstAddr)
	if err != nil {
		return err
	}
	if amount > src.Available {
		return vault.ErrInsufficientAvailable
	}
	if accs[3].Pubkey != src.CustodyAccount {
		return fmt.Errorf("%w: source custody is %s, want %s", ErrBadAccountList, accs[3].Pubkey, src.CustodyAccount)
	}
	if accs[4].Pubkey != dst.CustodyAccount {
		return fmt.Errorf("%w: destination custody is %s, want %s", ErrBadAccountList, accs[4].Pubkey, dst.CustodyAccount)
	}
	srcCustody, err := p.tokenAt(tx, accs[3].Pubkey)
	if err != nil {
		return err
	}
	dstCustody, err := p.tokenAt(tx, accs[4].Pubkey)
	if err != nil {
		return err
	}
	if srcCustody.Mint != p.mint || dstCustody.Mint != p.mint {
		return vault.ErrInvalidAssetMint
	}

	if err := token.AuthorizeSeeds(srcCustody, src.SigningSeeds(), p.id); err != nil {
		return err
	}
	if err := token.Transfer(srcCustody, dstCustody, amount); err != nil {
		return err
	}

	if err := src.ApplyWithdraw(amount); err != nil {
		return err
	}
	if err := dst.ApplyDeposit(amount); err != nil {
		return err
	}
	assertInvariants(src)
	assertInvariants(dst)

	tx.put(accs[3].Pubkey, srcCustody.Encode())
	tx.put(accs[4].Pubkey, dstCustody.Encode())
	tx.put(srcAddr, src.Encode())
	tx.put(dstAddr, dst.Encode())
	tx.emit(&event.Transferred{
		Source:      srcAddr,
		Destination: dstAddr,
		Amount:      amount,
		Reason:      reason,
		InitiatedBy: signer,
		Timestamp:   tx.now,
	})
	return nil
}
