package config

import (
	"os"
	"strconv"
	"time"

	"sbcheck/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Study  StudyConfig
	Engine EngineConfig
	Output OutputConfig
}

// StudyConfig shapes a calibration study
type StudyConfig struct {
	// Runs is the number of independent simulation repetitions R
	Runs int
	// Workers bounds parallel run execution; the external engine is the
	// dominant per-run cost, so this is effectively an engine-slot count
	Workers int
	// Seed is the base seed every per-run stream derives from
	Seed uint64

	// Design shape for the built-in multinomial-logit model
	Observations int // N
	Alternatives int // P
	Levels       int // L

	// PriorScale is the standard deviation of the independent normal prior
	PriorScale float64

	// Bins is the rank histogram bin count for the uniformity check
	Bins int
	// Alpha is the significance level a dimension is flagged at
	Alpha float64
	// MaxInvalidFraction is the exclusion budget; past it the study verdict
	// is inconclusive regardless of the surviving ranks
	MaxInvalidFraction float64
}

// EngineConfig holds external inference engine settings
type EngineConfig struct {
	// ModelExe is the compiled sampler binary invoked per chain
	ModelExe string
	// ModelSrc is the model source file, compiled lazily when ModelExe is absent
	ModelSrc string
	// ToolchainDir is the engine toolchain root used for compilation
	ToolchainDir string
	WorkDir      string
	Chains       int
	// SamplesPerChain is the post-warmup draw count per chain
	SamplesPerChain int
	Warmup          int
	// MaxDivergentFraction and MaxRHat are the convergence gates; a fit
	// breaching either is excluded as non-convergent
	MaxDivergentFraction float64
	MaxRHat              float64
	Timeout              time.Duration
}

// OutputConfig holds report artifact settings
type OutputConfig struct {
	Dir       string
	WriteXLSX bool
	WriteHTML bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Study:  loadStudyConfig(),
		Engine: loadEngineConfig(),
		Output: loadOutputConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadStudyConfig() StudyConfig {
	return StudyConfig{
		Runs:               getEnvIntOrDefault("SBC_RUNS", 50),
		Workers:            getEnvIntOrDefault("SBC_WORKERS", 4),
		Seed:               uint64(getEnvIntOrDefault("SBC_SEED", 42)),
		Observations:       getEnvIntOrDefault("SBC_OBSERVATIONS", 100),
		Alternatives:       getEnvIntOrDefault("SBC_ALTERNATIVES", 3),
		Levels:             getEnvIntOrDefault("SBC_LEVELS", 10),
		PriorScale:         getEnvFloatOrDefault("SBC_PRIOR_SCALE", 1.0),
		Bins:               getEnvIntOrDefault("SBC_BINS", 20),
		Alpha:              getEnvFloatOrDefault("SBC_ALPHA", 0.01),
		MaxInvalidFraction: getEnvFloatOrDefault("SBC_MAX_INVALID_FRACTION", 0.1),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		ModelExe:             getEnvOrDefault("ENGINE_MODEL_EXE", ""),
		ModelSrc:             getEnvOrDefault("ENGINE_MODEL_SRC", ""),
		ToolchainDir:         getEnvOrDefault("ENGINE_TOOLCHAIN_DIR", ""),
		WorkDir:              getEnvOrDefault("ENGINE_WORK_DIR", os.TempDir()),
		Chains:               getEnvIntOrDefault("ENGINE_CHAINS", 4),
		SamplesPerChain:      getEnvIntOrDefault("ENGINE_SAMPLES", 500),
		Warmup:               getEnvIntOrDefault("ENGINE_WARMUP", 500),
		MaxDivergentFraction: getEnvFloatOrDefault("ENGINE_MAX_DIVERGENT_FRACTION", 0.01),
		MaxRHat:              getEnvFloatOrDefault("ENGINE_MAX_RHAT", 1.05),
		Timeout:              time.Duration(getEnvIntOrDefault("ENGINE_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}

func loadOutputConfig() OutputConfig {
	return OutputConfig{
		Dir:       getEnvOrDefault("OUTPUT_DIR", "./out"),
		WriteXLSX: getEnvBoolOrDefault("OUTPUT_XLSX", true),
		WriteHTML: getEnvBoolOrDefault("OUTPUT_HTML", true),
	}
}

func validateConfig(config *Config) error {
	s := config.Study
	if s.Runs <= 0 {
		return errors.ConfigInvalid("SBC_RUNS must be positive")
	}
	if s.Workers <= 0 {
		return errors.ConfigInvalid("SBC_WORKERS must be positive")
	}
	if s.Observations <= 0 || s.Alternatives < 2 || s.Levels <= 0 {
		return errors.ConfigInvalid("design shape requires SBC_OBSERVATIONS > 0, SBC_ALTERNATIVES >= 2, SBC_LEVELS > 0")
	}
	if s.PriorScale <= 0 {
		return errors.ConfigInvalid("SBC_PRIOR_SCALE must be positive")
	}
	if s.Bins < 2 {
		return errors.ConfigInvalid("SBC_BINS must be at least 2")
	}
	if s.Alpha <= 0 || s.Alpha >= 1 {
		return errors.ConfigInvalid("SBC_ALPHA must be in (0, 1)")
	}
	if s.MaxInvalidFraction < 0 || s.MaxInvalidFraction >= 1 {
		return errors.ConfigInvalid("SBC_MAX_INVALID_FRACTION must be in [0, 1)")
	}
	e := config.Engine
	if e.Chains <= 0 || e.SamplesPerChain <= 0 {
		return errors.ConfigInvalid("ENGINE_CHAINS and ENGINE_SAMPLES must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
