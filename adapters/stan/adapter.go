// Package stan adapts a CmdStan-style external inference engine behind the
// posterior fitter port: write the data contract as JSON, invoke the
// compiled model binary per chain, parse the CSV draws back, gate on
// convergence diagnostics. The engine itself is an opaque collaborator.
package stan

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"sbcheck/domain/model"
	"sbcheck/internal/config"
	"sbcheck/internal/errors"
	"sbcheck/ports"
)

// Fitter invokes the external sampler. Safe for concurrent use: each Fit
// call works in its own scratch directory, and the model binary is resolved
// exactly once behind compileOne.
type Fitter struct {
	cfg   config.EngineConfig
	prior model.PriorSpec

	// exe and compileErr are written only inside compileOne.Do and read
	// only after Do returns
	compileOne sync.Once
	exe        string
	compileErr error
}

// NewFitter creates a fitter for the given engine configuration and prior
func NewFitter(cfg config.EngineConfig, prior model.PriorSpec) (*Fitter, error) {
	if err := prior.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid prior")
	}
	if cfg.ModelExe == "" && cfg.ModelSrc == "" {
		return nil, errors.ConfigInvalid("engine needs ENGINE_MODEL_EXE or ENGINE_MODEL_SRC")
	}
	return &Fitter{cfg: cfg, prior: prior}, nil
}

var _ ports.PosteriorFitterPort = (*Fitter)(nil)

// Dim returns the coefficient dimensionality
func (f *Fitter) Dim() int {
	return f.prior.Dim
}

// Fit runs the compile-model-then-sample plugin flow for one dataset and
// pools the post-warmup draws across chains. Chains run sequentially within
// a fit; parallelism lives at the run level where the worker pool bounds
// concurrent engine invocations.
func (f *Fitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	choice, ok := data.(model.ChoiceData)
	if !ok {
		return nil, errors.ShapeMismatch(fmt.Sprintf("engine fitter expects ChoiceData, got %T", data))
	}
	if choice.Design.L != f.prior.Dim {
		return nil, errors.ShapeMismatch(fmt.Sprintf("data has %d coefficients, fitter declares %d", choice.Design.L, f.prior.Dim))
	}

	exe, err := f.compiledModel(ctx)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(f.cfg.WorkDir, "fit-*")
	if err != nil {
		return nil, errors.EngineFailure("scratch setup", err)
	}
	defer os.RemoveAll(scratch)

	payload, err := dataJSON(choice, f.prior.Scale)
	if err != nil {
		return nil, errors.WithCode(errors.CodeShapeMismatch, err)
	}
	dataFile := filepath.Join(scratch, "data.json")
	if err := os.WriteFile(dataFile, payload, 0o644); err != nil {
		return nil, errors.EngineFailure("data write", err)
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	chains := make([][]model.ParamVector, 0, f.cfg.Chains)
	totalDivergent := 0
	for chain := 1; chain <= f.cfg.Chains; chain++ {
		out, err := f.sampleChain(ctx, exe, dataFile, scratch, chain, seed)
		if err != nil {
			return nil, err
		}
		chains = append(chains, out.draws)
		totalDivergent += out.divergent
	}

	return f.poolAndGate(chains, totalDivergent)
}

// sampleChain invokes the model binary once and parses its CSV output
func (f *Fitter) sampleChain(ctx context.Context, exe, dataFile, scratch string, chain int, seed uint64) (*chainOutput, error) {
	outFile := filepath.Join(scratch, fmt.Sprintf("chain-%d.csv", chain))

	cmd := exec.CommandContext(ctx, exe,
		"sample",
		fmt.Sprintf("num_samples=%d", f.cfg.SamplesPerChain),
		fmt.Sprintf("num_warmup=%d", f.cfg.Warmup),
		fmt.Sprintf("id=%d", chain),
		"data", fmt.Sprintf("file=%s", dataFile),
		"output", fmt.Sprintf("file=%s", outFile),
		"random", fmt.Sprintf("seed=%d", seed),
	)
	cmd.Dir = scratch
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.EngineFailure("sampling", ctx.Err())
		}
		return nil, errors.NonConvergence(fmt.Sprintf("engine exited with error on chain %d: %v: %s", chain, err, tail(out, 400)))
	}

	file, err := os.Open(outFile)
	if err != nil {
		return nil, errors.EngineFailure("output read", err)
	}
	defer file.Close()

	parsed, err := parseDrawsCSV(file, ParamName, f.prior.Dim)
	if err != nil {
		return nil, errors.ShapeMismatch(fmt.Sprintf("chain %d output violates data contract: %v", chain, err))
	}
	if len(parsed.draws) == 0 {
		return nil, errors.ShapeMismatch(fmt.Sprintf("chain %d returned an empty draw set", chain))
	}
	return parsed, nil
}

// poolAndGate applies the convergence gates and pools chains into one
// ordered draw sequence
func (f *Fitter) poolAndGate(chains [][]model.ParamVector, totalDivergent int) (*model.PosteriorDraws, error) {
	totalDraws := 0
	for _, chain := range chains {
		totalDraws += len(chain)
	}
	if totalDraws == 0 {
		return nil, errors.ShapeMismatch("engine returned no draws")
	}

	divergentFraction := float64(totalDivergent) / float64(totalDraws)
	if divergentFraction > f.cfg.MaxDivergentFraction {
		return nil, errors.NonConvergence(fmt.Sprintf("divergent transition fraction %.4f exceeds %.4f", divergentFraction, f.cfg.MaxDivergentFraction))
	}

	if len(chains) > 1 {
		raw := make([][][]float64, len(chains))
		for c, chain := range chains {
			raw[c] = make([][]float64, len(chain))
			for m, draw := range chain {
				raw[c][m] = draw
			}
		}
		rhat := maxSplitRHat(raw, f.prior.Dim)
		if math.IsNaN(rhat) || rhat > f.cfg.MaxRHat {
			return nil, errors.NonConvergence(fmt.Sprintf("split R-hat %.4f exceeds %.4f", rhat, f.cfg.MaxRHat))
		}
	}

	pooled := &model.PosteriorDraws{Params: make([]model.ParamVector, 0, totalDraws)}
	for _, chain := range chains {
		pooled.Params = append(pooled.Params, chain...)
	}
	return pooled, nil
}

// compiledModel resolves the model binary, compiling the source once when
// only ENGINE_MODEL_SRC is configured
func (f *Fitter) compiledModel(ctx context.Context) (string, error) {
	f.compileOne.Do(func() {
		if f.cfg.ModelExe != "" {
			f.exe = f.cfg.ModelExe
			return
		}
		if f.cfg.ToolchainDir == "" {
			f.compileErr = errors.ConfigInvalid("compiling ENGINE_MODEL_SRC requires ENGINE_TOOLCHAIN_DIR")
			return
		}
		target := exeTarget(f.cfg.ModelSrc)
		cmd := exec.CommandContext(ctx, "make", target)
		cmd.Dir = f.cfg.ToolchainDir
		if out, err := cmd.CombinedOutput(); err != nil {
			f.compileErr = errors.EngineFailure("model compilation", fmt.Errorf("%v: %s", err, tail(out, 400)))
			return
		}
		f.exe = target
	})
	if f.compileErr != nil {
		return "", f.compileErr
	}
	return f.exe, nil
}

func exeTarget(src string) string {
	ext := filepath.Ext(src)
	return src[:len(src)-len(ext)]
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
