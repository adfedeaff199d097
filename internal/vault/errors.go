package vault

import "fmt"

// Code enumerates every custody failure kind. The ordinals are part of the
// external interface (indexers and clients match on them), so new kinds may
// only be appended. Numbering starts at 6000, leaving the lower range for
// runtime-level failures.
type Code uint32

const (
	CodeInvalidAmount         Code = 6000 + iota // amount == 0
	CodeInvalidAssetMint                         // token account holds the wrong asset
	CodeInsufficientAvailable                    // available < amount on withdraw/lock/transfer
	CodeInsufficientLocked                       // locked < amount on unlock
	CodeUnauthorized                             // owner-gated call with wrong signer
	CodeUnauthorizedDelegate                     // delegate-gated call, signer not enrolled
	CodeNotAdmin                                 // admin-gated call with non-admin signer
	CodeVaultAlreadyExists                       // create_vault on an occupied address
	CodeVaultNotFound                            // vault account missing
	CodePaused                                   // balance mutation while paused
	CodeDelegateListFull                         // add_delegate at the 10-entry cap
	CodeDelegateNotPresent                       // remove_delegate for an absent entry
	CodeOverflow                                 // checked addition failed
	CodeUnderflow                                // checked subtraction failed
)

func (c Code) String() string {
	switch c {
	case CodeInvalidAmount:
		return "InvalidAmount"
	case CodeInvalidAssetMint:
		return "InvalidAssetMint"
	case CodeInsufficientAvailable:
		return "InsufficientAvailable"
	case CodeInsufficientLocked:
		return "InsufficientLocked"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeUnauthorizedDelegate:
		return "UnauthorizedDelegate"
	case CodeNotAdmin:
		return "NotAdmin"
	case CodeVaultAlreadyExists:
		return "VaultAlreadyExists"
	case CodeVaultNotFound:
		return "VaultNotFound"
	case CodePaused:
		return "Paused"
	case CodeDelegateListFull:
		return "DelegateListFull"
	case CodeDelegateNotPresent:
		return "DelegateNotPresent"
	case CodeOverflow:
		return "Overflow"
	case CodeUnderflow:
		return "Underflow"
	default:
		return fmt.Sprintf("Code(%d)", uint32(c))
	}
}

// Error is a custody failure: the kind plus the instruction that raised it.
// Nothing else is carried; no account contents leak into error strings.
type Error struct {
	Code Code
	Op   string // instruction name, filled in at dispatch
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Code.String()
	}
	return e.Op + ": " + e.Code.String()
}

// Is matches any *Error with the same Code, so call sites can test
// errors.Is(err, vault.ErrPaused) regardless of which instruction raised it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel values, one per kind.
var (
	ErrInvalidAmount         = &Error{Code: CodeInvalidAmount}
	ErrInvalidAssetMint      = &Error{Code: CodeInvalidAssetMint}
	ErrInsufficientAvailable = &Error{Code: CodeInsufficientAvailable}
	ErrInsufficientLocked    = &Error{Code: CodeInsufficientLocked}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized}
	ErrUnauthorizedDelegate  = &Error{Code: CodeUnauthorizedDelegate}
	ErrNotAdmin              = &Error{Code: CodeNotAdmin}
	ErrVaultAlreadyExists    = &Error{Code: CodeVaultAlreadyExists}
	ErrVaultNotFound         = &Error{Code: CodeVaultNotFound}
	ErrPaused                = &Error{Code: CodePaused}
	ErrDelegateListFull      = &Error{Code: CodeDelegateListFull}
	ErrDelegateNotPresent    = &Error{Code: CodeDelegateNotPresent}
	ErrOverflow              = &Error{Code: CodeOverflow}
	ErrUnderflow             = &Error{Code: CodeUnderflow}
)
