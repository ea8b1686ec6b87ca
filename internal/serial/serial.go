// Package serial generates time-stamp token serial numbers.
package serial

import (
	"crypto/rand"
	"io"
	"math/big"
)

// Generator produces unique non-negative serial numbers. Implementations
// must be safe for concurrent use.
type Generator interface {
	Next() (*big.Int, error)
}

// serialBits is the size of random serials. RFC 3161 requires uniqueness
// only; 128 random bits make collisions negligible without coordination.
const serialBits = 128

// RandomGenerator draws serials from a cryptographically secure source.
type RandomGenerator struct {
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

// NewRandomGenerator returns a RandomGenerator backed by crypto/rand.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// Next returns a random serial in [1, 2^128).
func (g *RandomGenerator) Next() (*big.Int, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	max := new(big.Int).Lsh(big.NewInt(1), serialBits)
	for {
		n, err := rand.Int(r, max)
		if err != nil {
			return nil, err
		}
		if n.Sign() > 0 {
			return n, nil
		}
	}
}

// Func adapts a function to the Generator interface.
type Func func() (*big.Int, error)

// Next calls f.
func (f Func) Next() (*big.Int, error) { return f() }

// Fixed returns a Generator that always yields n.
func Fixed(n *big.Int) Generator {
	return Func(func() (*big.Int, error) { return new(big.Int).Set(n), nil })
}
