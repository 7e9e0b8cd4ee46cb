// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - New(ctx) returns a Config holding every default.
// - Load layers a YAML file and PROMPTELO_* env vars on top of New.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/okian/promptelo/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	DefaultRating float64         `koanf:"default_rating"`
	KFactor       float64         `koanf:"k_factor"`
	Rounds        int             `koanf:"rounds"`
	PairsPerRound int             `koanf:"pairs_per_round"`
	Seed          int64           `koanf:"seed"`
	Candidates    int             `koanf:"candidates"`
	JudgeMode     model.JudgeMode `koanf:"judge_mode"`
	Parallelism   int             `koanf:"parallelism"`

	// AnswerLimit and ReasonLimit truncate answers shown to the judge and
	// the judge's reason.
	AnswerLimit int `koanf:"answer_limit"`
	ReasonLimit int `koanf:"reason_limit"`

	GenTemperature   float32 `koanf:"gen_temperature"`
	ExecTemperature  float32 `koanf:"exec_temperature"`
	JudgeTemperature float32 `koanf:"judge_temperature"`

	// CandidateModels back the Generator and AnswerProvider chains,
	// JudgeModels the Evaluator chain. Order is fallback order.
	CandidateModels []string `koanf:"candidate_models"`
	JudgeModels     []string `koanf:"judge_models"`

	OpenAIBaseURL string `koanf:"openai_base_url"`
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	// RequestsPerSecond limits calls per backend; 0 is unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// QueueSize bounds the in-memory tournament queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of tournament workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many idempotency keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxListLimit caps ?limit on list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	ReportDir string `koanf:"report_dir"`
	// PostgresDSN enables the Postgres result store when set.
	PostgresDSN string `koanf:"postgres_dsn"`
	// Offline swaps every model for a simulated backend.
	Offline bool `koanf:"offline"`
}

// New creates a Config with defaults. ctx is reserved for loaders that need it.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		DefaultRating:    1200,
		KFactor:          24,
		Rounds:           12,
		PairsPerRound:    8,
		Seed:             42,
		Candidates:       6,
		JudgeMode:        model.JudgeModeEvidence,
		Parallelism:      4,
		AnswerLimit:      1200,
		ReasonLimit:      160,
		GenTemperature:   0.9,
		ExecTemperature:  0.2,
		JudgeTemperature: 0,
		CandidateModels:  []string{"o4-mini", "gpt-4o-mini"},
		JudgeModels:      []string{"o3-mini", "o4-mini"},
		QueueSize:        64,
		WorkerCount:      max(runtime.NumCPU()/2, 1),
		DedupeSize:       10_000,
		MaxListLimit:     100,
		ReportDir:        "generated_prompts",
	}
}

// Validate reports every invalid field joined into one ErrInvalidConfig error.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.KFactor <= 0 {
		errs = append(errs, fmt.Errorf("k_factor must be positive, got %v", c.KFactor))
	}
	if c.Rounds < 0 {
		errs = append(errs, fmt.Errorf("rounds must not be negative, got %d", c.Rounds))
	}
	if c.DefaultRating <= 0 {
		errs = append(errs, fmt.Errorf("default_rating must be positive, got %v", c.DefaultRating))
	}
	if !c.JudgeMode.Valid() {
		errs = append(errs, fmt.Errorf("unknown judge_mode %q", c.JudgeMode))
	}
	if !c.Offline {
		if len(c.CandidateModels) == 0 {
			errs = append(errs, errors.New("candidate_models must not be empty"))
		}
		if len(c.JudgeModels) == 0 {
			errs = append(errs, errors.New("judge_models must not be empty"))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Settings returns the tournament defaults described by c.
func (c *Config) Settings() model.Settings {
	return model.Settings{
		Rounds:        c.Rounds,
		PairsPerRound: c.PairsPerRound,
		KFactor:       c.KFactor,
		Seed:          c.Seed,
		DefaultRating: c.DefaultRating,
		Candidates:    c.Candidates,
		Mode:          c.JudgeMode,
		Parallelism:   c.Parallelism,
	}
}
