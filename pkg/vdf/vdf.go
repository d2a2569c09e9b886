// Copyright 2025 Certen Protocol
//
// Verifiable Delay Function facade.
//
// The VDF primitive is treated as an external black box by the randomness
// service: this package only needs to honor the contract "evaluate is slow
// and sequential, verify is comparatively cheap, and the output is uniquely
// determined by the input". It implements that contract with a Sloth-style
// construction: evaluation performs D sequential modular square-root
// extractions (each a full modular exponentiation), verification performs D
// sequential modular squarings (each a single multiplication), which is what
// gives verify() its asymptotic speedup over evaluate().

package vdf

import (
	"math/big"
)

// Difficulty is the number of sequential rounds applied by Evaluate/Verify.
// Must be identical across every validator; changing it changes the meaning
// of every previously-recorded VDF result.
const Difficulty = 8096 * 16

// modulus is the RFC3526 Group 14 2048-bit MODP prime. It is a safe prime
// (p = 2q+1 for prime q), which makes it congruent to 3 mod 4, so the
// square root of a quadratic residue can be extracted with a single
// exponentiation (x^((p+1)/4) mod p); for a non-residue the same
// exponentiation yields a square root of -x. Generated once; never rotated, since rotating it
// would change the domain of every in-flight round.
var modulus, sqrtExponent = func() (*big.Int, *big.Int) {
	p, ok := new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA"+
			"63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C2"+
			"45E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F2"+
			"4117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24"+
			"CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F17"+
			"46C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F"+
			"4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68F"+
			"FFFFFFFFFFFFFFF", 16)
	if !ok {
		panic("vdf: failed to parse fixed modulus")
	}
	if p.Bit(0) == 0 || new(big.Int).Mod(p, big.NewInt(4)).Int64() != 3 {
		panic("vdf: fixed modulus is not a prime congruent to 3 mod 4")
	}
	// exponent used to take a square root mod p: (p+1)/4
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))
	return p, exp
}()

// Evaluate computes the VDF output for seed using the fixed global
// Difficulty, parsing seed as a non-negative big-endian integer. It is
// deliberately slow and sequential and must never be called from
// transaction-execution code paths.
func Evaluate(seed []byte) (string, bool) {
	return evaluateRounds(seed, Difficulty)
}

// Verify reports whether value is the VDF output for seed at the fixed
// global Difficulty. It parses seed as a big-endian integer and value as a
// decimal integer; any parse failure is reported as a failed verification
// rather than an error, matching the silent-failure contract used by
// transaction execution.
func Verify(seed []byte, value string) bool {
	return verifyRounds(seed, value, Difficulty)
}

func evaluateRounds(seed []byte, rounds int) (string, bool) {
	x := new(big.Int).SetBytes(seed)
	if x.Sign() < 0 {
		return "", false
	}
	x.Mod(x, modulus)

	for i := 0; i < rounds; i++ {
		x.Exp(x, sqrtExponent, modulus)
	}
	return x.String(), true
}

func verifyRounds(seed []byte, value string, rounds int) bool {
	x := new(big.Int).SetBytes(seed)
	x.Mod(x, modulus)

	y, ok := new(big.Int).SetString(value, 10)
	if !ok || y.Sign() < 0 || y.Cmp(modulus) >= 0 {
		return false
	}

	cur := new(big.Int).Set(y)
	for i := 0; i < rounds; i++ {
		cur.Mul(cur, cur)
		cur.Mod(cur, modulus)
	}
	if cur.Cmp(x) == 0 {
		return true
	}
	// For a seed that is not a quadratic residue, the first round of
	// evaluateRounds yields a square root of -x, so squaring back arrives
	// at p-x instead of x.
	negX := new(big.Int).Sub(modulus, x)
	return x.Sign() != 0 && cur.Cmp(negX) == 0
}
