package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/promptelo/internal/adapters/repository"
	service "github.com/okian/promptelo/internal/app"
	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/config"
	"github.com/okian/promptelo/pkg/logger"
)

// simulatedPoolSize is the minimum number of prompts an offline generator lists.
const simulatedPoolSize = 8

var errNoAPIKey = errors.New("OPENAI_API_KEY is not set; use --offline for a dry run")

// buildCapabilities resolves the three capability chains once from cfg.
func buildCapabilities(cfg *config.Config, log logger.Logger) (capability.Set, error) {
	chainLog := capability.WithLogger(log.Named("capability"))

	if cfg.Offline {
		gen := capability.NewSimulatedBackend("simulated-generator",
			capability.WithSeed(cfg.Seed),
			capability.WithResponder(capability.ListResponder(max(cfg.Candidates, simulatedPoolSize))),
		)
		answers := capability.NewSimulatedBackend("simulated-answers",
			capability.WithResponder(capability.EchoResponder),
		)
		judge := capability.NewSimulatedBackend("simulated-judge", capability.WithSeed(cfg.Seed))
		return capability.Set{
			Generator:      capability.NewChain(capability.Generator, []capability.Backend{gen}, chainLog),
			AnswerProvider: capability.NewChain(capability.AnswerProvider, []capability.Backend{answers}, chainLog),
			Evaluator:      capability.NewChain(capability.Evaluator, []capability.Backend{judge}, chainLog),
		}, nil
	}

	if cfg.OpenAIAPIKey == "" {
		return capability.Set{}, errNoAPIKey
	}
	backends := func(models []string) []capability.Backend {
		out := make([]capability.Backend, len(models))
		for i, m := range models {
			out[i] = capability.NewOpenAIBackend(m,
				capability.WithAPIKey(cfg.OpenAIAPIKey),
				capability.WithBaseURL(cfg.OpenAIBaseURL),
				capability.WithRateLimit(cfg.RequestsPerSecond, 1),
			)
		}
		return out
	}
	return capability.Set{
		Generator:      capability.NewChain(capability.Generator, backends(cfg.CandidateModels), chainLog),
		AnswerProvider: capability.NewChain(capability.AnswerProvider, backends(cfg.CandidateModels), chainLog),
		Evaluator:      capability.NewChain(capability.Evaluator, backends(cfg.JudgeModels), chainLog),
	}, nil
}

// buildStore returns the in-memory store, fanned out to Postgres when a DSN
// is configured. The returned func releases both.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func(), error) {
	mem := repository.NewMemoryStore(ctx)
	if cfg.PostgresDSN == "" {
		return mem, func() { _ = mem.Close() }, nil
	}
	pg, err := repository.OpenPostgres(ctx, cfg.PostgresDSN, repository.WithPostgresLogger(log.Named("postgres")))
	if err != nil {
		_ = mem.Close()
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	closeAll := func() {
		_ = pg.Close()
		_ = mem.Close()
	}
	return repository.NewMultiStore(mem, pg), closeAll, nil
}

// newService builds a Service from cfg.
func newService(cfg *config.Config, caps capability.Set, store repository.Store, log logger.Logger) *service.Service {
	return service.New(caps,
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithSettings(cfg.Settings()),
		service.WithLimits(cfg.AnswerLimit, cfg.ReasonLimit),
		service.WithTemperatures(cfg.GenTemperature, cfg.ExecTemperature, cfg.JudgeTemperature),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
	)
}
