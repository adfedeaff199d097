// Package program implements the custody program: the instruction wire
// codec, the authorization matrix, and the nine instruction handlers.
package program

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"CollateralVault/internal/chain"
	"CollateralVault/internal/event"
)

// Runtime-level failures: the call never reached a handler. Distinct from
// the custody error taxonomy, which covers gate and arithmetic rejections.
var (
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")
	ErrBadInstructionData = errors.New("instruction data length mismatch")
	ErrBadAccountList     = errors.New("account list diverges from instruction layout")
)

// Op identifies one of the nine custody instructions plus registry creation.
type Op int

const (
	OpCreateRegistry Op = iota
	OpAddDelegate
	OpRemoveDelegate
	OpSetPaused
	OpCreateVault
	OpDeposit
	OpWithdraw
	OpLock
	OpUnlock
	OpTransfer

	numOps
)

func (op Op) String() string {
	switch op {
	case OpCreateRegistry:
		return "create_registry"
	case OpAddDelegate:
		return "add_delegate"
	case OpRemoveDelegate:
		return "remove_delegate"
	case OpSetPaused:
		return "set_paused"
	case OpCreateVault:
		return "create_vault"
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	case OpLock:
		return "lock"
	case OpUnlock:
		return "unlock"
	case OpTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Discriminator returns the 8-byte instruction tag:
// sha256("global:" + snake_case_name)[0:8].
func (op Op) Discriminator() [8]byte {
	h := sha256.Sum256([]byte("global:" + op.String()))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}

var opByDiscriminator = func() map[[8]byte]Op {
	m := make(map[[8]byte]Op, numOps)
	for op := OpCreateRegistry; op < numOps; op++ {
		m[op.Discriminator()] = op
	}
	return m
}()

// AccountMeta is one account input: its address plus the signer/writable
// flags the caller asserted.
type AccountMeta struct {
	Pubkey     chain.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one decoded call into the program.
type Instruction struct {
	Data     []byte
	Accounts []AccountMeta
}

// Params carries the decoded scalar arguments. Only the fields the
// instruction defines are meaningful.
type Params struct {
	Amount    uint64
	Principal chain.Pubkey
	Paused    bool
	Reason    event.TransferReason
}

// dataLen is the exact wire length per instruction, discriminator included.
var dataLen = map[Op]int{
	OpCreateRegistry: 8,
	OpAddDelegate:    8 + 32,
	OpRemoveDelegate: 8 + 32,
	OpSetPaused:      8 + 1,
	OpCreateVault:    8,
	OpDeposit:        8 + 8,
	OpWithdraw:       8 + 8,
	OpLock:           8 + 8,
	OpUnlock:         8 + 8,
	OpTransfer:       8 + 8 + 1,
}

// metaSpec is the required flag pair for one account slot.
type metaSpec struct {
	signer   bool
	writable bool
}

// accountSpecs fixes the account count, order, and flags per instruction.
// Any divergent layout is rejected before dispatch.
var accountSpecs = map[Op][]metaSpec{
	// [admin, registry]
	OpCreateRegistry: {{true, false}, {false, true}},
	OpAddDelegate:    {{true, false}, {false, true}},
	OpRemoveDelegate: {{true, false}, {false, true}},
	OpSetPaused:      {{true, false}, {false, true}},
	// [owner, vault, custody, registry]
	OpCreateVault: {{true, false}, {false, true}, {false, true}, {false, false}},
	// [owner, vault, registry, owner_token, custody]
	OpDeposit:  {{true, false}, {false, true}, {false, false}, {false, true}, {false, true}},
	OpWithdraw: {{true, false}, {false, true}, {false, false}, {false, true}, {false, true}},
	// [delegate, vault, registry]
	OpLock:   {{true, false}, {false, true}, {false, false}},
	OpUnlock: {{true, false}, {false, true}, {false, false}},
	// [delegate, source_vault, dest_vault, source_custody, dest_custody, registry]
	OpTransfer: {{true, false}, {false, true}, {false, true}, {false, true}, {false, true}, {false, false}},
}

// DecodeData resolves the discriminator and parses the scalar arguments.
func DecodeData(data []byte) (Op, Params, error) {
	if len(data) < 8 {
		return 0, Params{}, ErrBadInstructionData
	}
	var d [8]byte
	copy(d[:], data[:8])
	op, ok := opByDiscriminator[d]
	if !ok {
		return 0, Params{}, ErrUnknownInstruction
	}
	if len(data) != dataLen[op] {
		return op, Params{}, fmt.Errorf("%w: %s takes %d bytes, got %d",
			ErrBadInstructionData, op, dataLen[op], len(data))
	}

	var params Params
	body := data[8:]
	switch op {
	case OpAddDelegate, OpRemoveDelegate:
		copy(params.Principal[:], body)
	case OpSetPaused:
		params.Paused = body[0] == 1
	case OpDeposit, OpWithdraw, OpLock, OpUnlock:
		params.Amount = binary.LittleEndian.Uint64(body)
	case OpTransfer:
		params.Amount = binary.LittleEndian.Uint64(body)
		reason, err := event.ParseTransferReason(body[8])
		if err != nil {
			return op, Params{}, fmt.Errorf("%w: %v", ErrBadInstructionData, err)
		}
		params.Reason = reason
	}
	return op, params, nil
}

// validateAccounts checks the account list against the instruction's fixed
// layout: exact count and exact signer/writable flags.
func validateAccounts(op Op, accs []AccountMeta) error {
	spec := accountSpecs[op]
	if len(accs) != len(spec) {
		return fmt.Errorf("%w: %s takes %d accounts, got %d",
			ErrBadAccountList, op, len(spec), len(accs))
	}
	for i, s := range spec {
		if accs[i].IsSigner != s.signer || accs[i].IsWritable != s.writable {
			return fmt.Errorf("%w: %s account %d flags (signer=%t writable=%t), want (signer=%t writable=%t)",
				ErrBadAccountList, op, i, accs[i].IsSigner, accs[i].IsWritable, s.signer, s.writable)
		}
	}
	return nil
}

func encodeData(op Op, body []byte) []byte {
	d := op.Discriminator()
	return append(d[:], body...)
}

func u64Body(amount uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], amount)
	return b[:]
}

// Instruction builders. Clients and tests assemble calls through these so
// the account layout stays in one place.

func NewCreateRegistry(admin, registry chain.Pubkey) Instruction {
	return Instruction{
		Data: encodeData(OpCreateRegistry, nil),
		Accounts: []AccountMeta{
			{Pubkey: admin, IsSigner: true},
			{Pubkey: registry, IsWritable: true},
		},
	}
}

func NewAddDelegate(admin, registry, delegate chain.Pubkey) Instruction {
	return Instruction{
		Data: encodeData(OpAddDelegate, delegate.Bytes()),
		Accounts: []AccountMeta{
			{Pubkey: admin, IsSigner: true},
			{Pubkey: registry, IsWritable: true},
		},
	}
}

func NewRemoveDelegate(admin, registry, delegate chain.Pubkey) Instruction {
	return Instruction{
		Data: encodeData(OpRemoveDelegate, delegate.Bytes()),
		Accounts: []AccountMeta{
			{Pubkey: admin, IsSigner: true},
			{Pubkey: registry, IsWritable: true},
		},
	}
}

func NewSetPaused(admin, registry chain.Pubkey, paused bool) Instruction {
	body := []byte{0}
	if paused {
		body[0] = 1
	}
	return Instruction{
		Data: encodeData(OpSetPaused, body),
		Accounts: []AccountMeta{
			{Pubkey: admin, IsSigner: true},
			{Pubkey: registry, IsWritable: true},
		},
	}
}

func NewCreateVault(owner, vaultAddr, custody, registry chain.Pubkey) Instruction {
	return Instruction{
		Data: encodeData(OpCreateVault, nil),
		Accounts: []AccountMeta{
			{Pubkey: owner, IsSigner: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: custody, IsWritable: true},
			{Pubkey: registry},
		},
	}
}

func NewDeposit(owner, vaultAddr, registry, ownerToken, custody chain.Pubkey, amount uint64) Instruction {
	return Instruction{
		Data: encodeData(OpDeposit, u64Body(amount)),
		Accounts: []AccountMeta{
			{Pubkey: owner, IsSigner: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: registry},
			{Pubkey: ownerToken, IsWritable: true},
			{Pubkey: custody, IsWritable: true},
		},
	}
}

func NewWithdraw(owner, vaultAddr, registry, ownerToken, custody chain.Pubkey, amount uint64) Instruction {
	return Instruction{
		Data: encodeData(OpWithdraw, u64Body(amount)),
		Accounts: []AccountMeta{
			{Pubkey: owner, IsSigner: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: registry},
			{Pubkey: ownerToken, IsWritable: true},
			{Pubkey: custody, IsWritable: true},
		},
	}
}

func NewLock(delegate, vaultAddr, registry chain.Pubkey, amount uint64) Instruction {
	return Instruction{
		Data: encodeData(OpLock, u64Body(amount)),
		Accounts: []AccountMeta{
			{Pubkey: delegate, IsSigner: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: registry},
		},
	}
}

func NewUnlock(delegate, vaultAddr, registry chain.Pubkey, amount uint64) Instruction {
	return Instruction{
		Data: encodeData(OpUnlock, u64Body(amount)),
		Accounts: []AccountMeta{
			{Pubkey: delegate, IsSigner: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: registry},
		},
	}
}

func NewTransfer(delegate, srcVault, dstVault, srcCustody, dstCustody, registry chain.Pubkey, amount uint64, reason event.TransferReason) Instruction {
	body := append(u64Body(amount), byte(reason))
	return Instruction{
		Data: encodeData(OpTransfer, body),
		Accounts: []AccountMeta{
			{Pubkey: delegate, IsSigner: true},
			{Pubkey: srcVault, IsWritable: true},
			{Pubkey: dstVault, IsWritable: true},
			{Pubkey: srcCustody, IsWritable: true},
			{Pubkey: dstCustody, IsWritable: true},
			{Pubkey: registry},
		},
	}
}
