package service

import (
	"math/rand/v2"

	"github.com/okian/levitate/internal/domain/imagegen"
)

// SeedSource yields generation seeds in [0, imagegen.MaxSeed].
type SeedSource interface {
	Seed() int64
}

// SeedFunc adapts a function to SeedSource.
type SeedFunc func() int64

// Seed calls f.
func (f SeedFunc) Seed() int64 { return f() }

// RandomSeeds draws uniformly from the full seed range so repeated
// generations for the same track differ.
func RandomSeeds() SeedSource {
	return SeedFunc(func() int64 { return rand.Int64N(imagegen.MaxSeed + 1) })
}

// FixedSeed always returns seed, clamped into range. Useful for
// reproducible runs.
func FixedSeed(seed int64) SeedSource {
	seed = max(0, min(seed, imagegen.MaxSeed))
	return SeedFunc(func() int64 { return seed })
}
