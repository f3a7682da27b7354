package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sbcheck/adapters/conjugate"
	"sbcheck/adapters/report"
	"sbcheck/adapters/rng"
	"sbcheck/adapters/stan"
	"sbcheck/app"
	"sbcheck/domain/core"
	"sbcheck/domain/model"
	"sbcheck/internal"
	intcalib "sbcheck/internal/calibration"
	"sbcheck/internal/config"
	"sbcheck/internal/simulate"
	"sbcheck/ports"
)

func main() {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sbcheck",
		Short: "Simulation-based calibration harness for Bayesian choice models",
	}

	rootCmd.AddCommand(
		newCalibrateCmd(),
		newPriorCheckCmd(),
		newSelfCheckCmd(),
		newReportCmd(),
		newModelCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run a full SBC study against the external inference engine",
		Long: `Run simulation-based calibration of the multinomial-logit choice model:
repeatedly draw a true coefficient vector from the prior, simulate choices,
refit with the external engine, and check that the true values' ranks among
the posterior draws are uniform.

Configuration comes from the environment (SBC_* and ENGINE_* variables, with a
.env file honored when present); engine paths are required here since every
run invokes the sampler.

Example: SBC_RUNS=50 ENGINE_MODEL_EXE=./choice_model sbcheck calibrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := internal.NewDefaultLogger()

			sim, err := buildLogitSimulator(cfg)
			if err != nil {
				return err
			}
			fitter, err := stan.NewFitter(cfg.Engine, sim.Prior())
			if err != nil {
				return err
			}

			service, err := buildStudyService(cfg, log, sim, fitter)
			if err != nil {
				return err
			}

			result, err := service.RunStudy(cmd.Context(), app.StudyRequest{
				Runs:    cfg.Study.Runs,
				Workers: cfg.Study.Workers,
				Seed:    cfg.Study.Seed,
				MaxRank: cfg.Engine.Chains * cfg.Engine.SamplesPerChain,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, result.Report)
		},
	}
	return cmd
}

func newPriorCheckCmd() *cobra.Command {
	var reps int

	cmd := &cobra.Command{
		Use:   "prior-check",
		Short: "Summarize simulated choice shares under the prior",
		Long: `Prior predictive check: draw coefficients from the prior, simulate choice
data, and report per-alternative share summaries. No fitting happens; this is
the cheap sanity check to run before calibrate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := internal.NewDefaultLogger()

			sim, err := buildLogitSimulator(cfg)
			if err != nil {
				return err
			}

			service := app.NewPriorPredictiveService(sim, rng.NewSeededAdapter(), log.With("prior-check"))
			result, err := service.Run(cmd.Context(), app.PriorPredictiveRequest{
				Reps: reps,
				Seed: cfg.Study.Seed,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}

	cmd.Flags().IntVar(&reps, "reps", 200, "Number of prior draws to simulate under")

	return cmd
}

func newSelfCheckCmd() *cobra.Command {
	var runs, draws, dims int

	cmd := &cobra.Command{
		Use:   "self-check",
		Short: "Validate the harness against an exact-posterior fitter",
		Long: `Run the calibration loop with a closed-form linear-Gaussian posterior in
place of the external engine. With exact posterior draws the rank histograms
must come out uniform, so a deviation verdict here means the harness itself
is broken, not the model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := internal.NewDefaultLogger()

			prior := model.StandardNormalPrior(dims)
			seedSource, err := rng.NewSeededAdapter().SeededStream(cmd.Context(), "self-check-design", cfg.Study.Seed)
			if err != nil {
				return err
			}
			design := simulate.RandomDesign(seedSource, cfg.Study.Observations, 2, dims)
			rows := make([][]float64, design.N)
			for n := range rows {
				rows[n] = design.X[n][0]
			}

			sim, err := conjugate.NewSimulator(prior, rows, 1.0)
			if err != nil {
				return err
			}
			fitter, err := conjugate.NewFitter(prior, draws)
			if err != nil {
				return err
			}

			service, err := buildStudyService(cfg, log, sim, fitter)
			if err != nil {
				return err
			}

			result, err := service.RunStudy(cmd.Context(), app.StudyRequest{
				StudyID: core.StudyID("self-check"),
				Runs:    runs,
				Workers: cfg.Study.Workers,
				Seed:    cfg.Study.Seed,
				MaxRank: draws,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, result.Report)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 1000, "Number of simulation repetitions")
	cmd.Flags().IntVar(&draws, "draws", 200, "Posterior draws per fit")
	cmd.Flags().IntVar(&dims, "dims", 3, "Coefficient dimensionality")

	return cmd
}

func newReportCmd() *cobra.Command {
	var input string
	var maxRank int
	var study string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-run the uniformity check over a saved rank table",
		Long: `Rebuild the study report from a rank-table CSV written by calibrate or
self-check. The uniformity check is recomputed from the saved ranks, so bin
count, alpha, and the exclusion budget can differ from the original run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			records, dims, err := report.ReadRankTable(input)
			if err != nil {
				return err
			}
			if maxRank <= 0 {
				maxRank = cfg.Engine.Chains * cfg.Engine.SamplesPerChain
			}

			checker, err := intcalib.NewChecker(cfg.Study.Bins, cfg.Study.Alpha, cfg.Study.MaxInvalidFraction)
			if err != nil {
				return err
			}
			studyReport, err := checker.Check(core.StudyID(study), "", records, dims, maxRank)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return err
			}
			sinks := []ports.RankSinkPort{
				&report.MarkdownSink{Path: filepath.Join(cfg.Output.Dir, "report.md")},
			}
			if cfg.Output.WriteHTML {
				sinks = append(sinks, &report.HTMLSink{Path: filepath.Join(cfg.Output.Dir, "report.html")})
			}
			for _, sink := range sinks {
				if err := sink.WriteStudy(studyReport, records); err != nil {
					return err
				}
			}

			return printJSON(cmd, studyReport)
		},
	}

	cmd.Flags().StringVar(&input, "input", "./out/ranks.csv", "Rank table CSV to rebuild from")
	cmd.Flags().IntVar(&maxRank, "max-rank", 0, "Posterior draw count M (defaults to ENGINE_CHAINS*ENGINE_SAMPLES)")
	cmd.Flags().StringVar(&study, "study", "rebuilt", "Study identifier for the report")

	return cmd
}

func newModelCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "write-model",
		Short: "Write the bundled choice model source for engine compilation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := stan.WriteModel(path); err != nil {
				return err
			}
			cmd.Printf("model written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "choice_model.stan", "Destination for the model source")

	return cmd
}

func buildLogitSimulator(cfg *config.Config) (*simulate.LogitSimulator, error) {
	prior, err := simulate.NewPriorSampler(model.PriorSpec{
		Family: model.PriorNormal,
		Loc:    0,
		Scale:  cfg.Study.PriorScale,
		Dim:    cfg.Study.Levels,
	})
	if err != nil {
		return nil, err
	}

	designStream, err := rng.NewSeededAdapter().SeededStream(context.Background(), "study-design", cfg.Study.Seed)
	if err != nil {
		return nil, err
	}
	design := simulate.RandomDesign(designStream, cfg.Study.Observations, cfg.Study.Alternatives, cfg.Study.Levels)

	return simulate.NewLogitSimulator(prior, design)
}

func buildStudyService(cfg *config.Config, log *internal.Logger, sim ports.SimulatorPort, fitter ports.PosteriorFitterPort) (*app.StudyService, error) {
	checker, err := intcalib.NewChecker(cfg.Study.Bins, cfg.Study.Alpha, cfg.Study.MaxInvalidFraction)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, err
	}
	sinks := []ports.RankSinkPort{
		&report.CSVSink{Path: filepath.Join(cfg.Output.Dir, "ranks.csv")},
		&report.MarkdownSink{Path: filepath.Join(cfg.Output.Dir, "report.md")},
	}
	if cfg.Output.WriteXLSX {
		sinks = append(sinks, &report.XLSXSink{Path: filepath.Join(cfg.Output.Dir, "ranks.xlsx")})
	}
	if cfg.Output.WriteHTML {
		sinks = append(sinks, &report.HTMLSink{Path: filepath.Join(cfg.Output.Dir, "report.html")})
	}

	return app.NewStudyService(sim, fitter, rng.NewSeededAdapter(), checker, sinks, log.With("study")), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
