package chain

import (
	"crypto/sha256"
	"errors"
	"math/big"
)

// Program-derived address rules: an address obtained by hashing seeds with
// the deriving program's ID plus a fixed marker. A valid PDA must NOT be a
// point on the ed25519 curve, so no private key can ever exist for it; the
// deriving program signs for it by replaying the seeds plus the bump.

const (
	// MaxSeeds is the maximum seed count per derivation, including the bump.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32
)

var pdaMarker = []byte("ProgramDerivedAddress")

var (
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrAddressOnCurve        = errors.New("derived address is on the ed25519 curve")
	ErrNoViableBump          = errors.New("no viable bump seed found")
)

// CreateProgramAddress derives the address for seeds under programID.
// Returns ErrAddressOnCurve if the hash lands on the curve; callers that
// need a guaranteed-off-curve address use FindProgramAddress instead.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrMaxSeedsExceeded
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Pubkey{}, ErrMaxSeedLengthExceeded
		}
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var addr Pubkey
	copy(addr[:], h.Sum(nil))

	if isOnCurve(addr) {
		return Pubkey{}, ErrAddressOnCurve
	}
	return addr, nil
}

// FindProgramAddress finds the first off-curve address by appending bump
// seeds from 255 downward. Returns the address and the bump that produced it.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return Pubkey{}, 0, ErrMaxSeedsExceeded
	}

	for bump := uint8(255); ; bump-- {
		withBump := make([][]byte, len(seeds)+1)
		copy(withBump, seeds)
		withBump[len(seeds)] = []byte{bump}

		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrAddressOnCurve) {
			return Pubkey{}, 0, err
		}
		if bump == 0 {
			break
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// curve25519 field prime p = 2^255 - 19 and Edwards parameter
// d = -121665/121666 (mod p), computed once.
var (
	curveP = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))
	curveD = func() *big.Int {
		d := new(big.Int).Mul(big.NewInt(-121665), new(big.Int).ModInverse(big.NewInt(121666), curveP))
		return d.Mod(d, curveP)
	}()
)

// isOnCurve reports whether the 32 bytes decode to a valid compressed
// ed25519 point. Ed25519 uses the twisted Edwards curve
// -x^2 + y^2 = 1 + d*x^2*y^2; a compressed point stores y and the sign of x.
// We recover x^2 = (y^2 - 1) / (d*y^2 + 1) and test it for a square root
// via Euler's criterion.
func isOnCurve(point Pubkey) bool {
	yBytes := make([]byte, 32)
	copy(yBytes, point[:])
	yBytes[31] &= 0x7F // clear sign-of-x bit

	// little-endian to big.Int
	y := new(big.Int)
	for i := 31; i >= 0; i-- {
		y.Lsh(y, 8)
		y.Or(y, big.NewInt(int64(yBytes[i])))
	}

	if y.Cmp(curveP) >= 0 {
		return false
	}

	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, curveP)

	num := new(big.Int).Sub(y2, big.NewInt(1))
	num.Mod(num, curveP)

	den := new(big.Int).Mul(curveD, y2)
	den.Add(den, big.NewInt(1))
	den.Mod(den, curveP)

	denInv := new(big.Int).ModInverse(den, curveP)
	if denInv == nil {
		return false
	}
	x2 := new(big.Int).Mul(num, denInv)
	x2.Mod(x2, curveP)

	// Euler's criterion: x^2 is a quadratic residue iff x2^((p-1)/2) == 1.
	exp := new(big.Int).Sub(curveP, big.NewInt(1))
	exp.Rsh(exp, 1)
	legendre := new(big.Int).Exp(x2, exp, curveP)

	return legendre.Cmp(big.NewInt(1)) == 0 || x2.Sign() == 0
}
