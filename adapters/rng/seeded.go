package rng

import (
	"context"
	"fmt"
	"math/rand/v2"

	"sbcheck/domain/core"
	"sbcheck/ports"
)

// SeededAdapter implements ports.RNGPort with PCG streams derived from a
// base seed. Derivation only hashes the (study, stage, run) triple, so the
// stream a run sees is independent of worker scheduling and completion order.
type SeededAdapter struct{}

// NewSeededAdapter creates the deterministic RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

var _ ports.RNGPort = (*SeededAdapter)(nil)

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed uint64) (*rand.Rand, error) {
	return rand.New(rand.NewPCG(seed, hashString(name))), nil
}

// RunStream creates a deterministic RNG stream for one stage of one run
func (a *SeededAdapter) RunStream(ctx context.Context, studyID core.StudyID, stage string, runIndex int, baseSeed uint64) (*rand.Rand, error) {
	if runIndex < 0 {
		return nil, fmt.Errorf("run index cannot be negative, got %d", runIndex)
	}
	seed := a.RunSeed(studyID, stage, runIndex, baseSeed)
	return rand.New(rand.NewPCG(seed, hashString(stage))), nil
}

// RunSeed derives the scalar seed for a run
func (a *SeededAdapter) RunSeed(studyID core.StudyID, stage string, runIndex int, baseSeed uint64) uint64 {
	seed := baseSeed
	if studyID != "" {
		seed = seed*31 + hashString(studyID.String())
	}
	if stage != "" {
		seed = seed*31 + hashString(stage)
	}
	return seed*31 + uint64(runIndex) + 1
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c) // djb2 algorithm
	}
	return hash
}
