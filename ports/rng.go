package ports

import (
	"context"
	"math/rand/v2"

	"sbcheck/domain/core"
)

// RNGPort provides seeded random number generation for deterministic operations.
// Returned streams satisfy rand.Source, so they plug directly into gonum
// distribution samplers.
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed uint64) (*rand.Rand, error)

	// RunStream creates a deterministic RNG stream for one stage of one
	// simulation run. Streams for distinct (study, stage, run) triples are
	// independent, and the same triple always yields the same stream, which
	// is what makes parallel study execution bitwise reproducible.
	RunStream(ctx context.Context, studyID core.StudyID, stage string, runIndex int, baseSeed uint64) (*rand.Rand, error)

	// RunSeed derives the scalar seed for a run, forwarded to external
	// engines that take seeds rather than streams
	RunSeed(studyID core.StudyID, stage string, runIndex int, baseSeed uint64) uint64
}
