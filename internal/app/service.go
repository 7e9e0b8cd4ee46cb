// Package service wires the tournament pipeline (generation, answers, judging,
// persistence) behind a job queue and exposes it to the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/promptelo/internal/adapters/mq/queue"
	workerpool "github.com/okian/promptelo/internal/adapters/mq/worker"
	"github.com/okian/promptelo/internal/adapters/repository"
	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/domain/dedupe"
	"github.com/okian/promptelo/internal/domain/elo"
	"github.com/okian/promptelo/internal/domain/judge"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/domain/standings"
	"github.com/okian/promptelo/internal/domain/tournament"
	"github.com/okian/promptelo/internal/generation"
	"github.com/okian/promptelo/internal/task"
	"github.com/okian/promptelo/pkg/logger"
	"github.com/okian/promptelo/pkg/metrics"
)

// Defaults for a service.
const (
	DefaultCandidates  = 6
	DefaultQueueSize   = 64
	DefaultDedupeSize  = 10_000
	DefaultParallelism = 4
)

// Errors returned by Service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("tournament queue is full")
	ErrNotFound     = errors.New("tournament not found")
	ErrNoGenerator  = errors.New("no generator configured and task has no candidates")
	ErrNoEvaluator  = errors.New("no evaluator configured")
)

type jobState struct {
	info model.JobInfo
}

// Service runs tournaments synchronously (Run) or through the job queue (Submit).
type Service struct {
	mu sync.RWMutex

	caps    capability.Set
	store   repository.Store
	deduper dedupe.Deduper
	queue   *jobqueue.InMemoryQueue
	pool    *workerpool.Pool

	settings         model.Settings
	answerLimit      int
	reasonLimit      int
	genTemperature   float32
	execTemperature  float32
	judgeTemperature float32

	workerCount int
	queueSize   int
	dedupeSize  int

	jobsMu sync.RWMutex
	jobs   map[string]*jobState

	started   bool
	ownsStore bool
	cancel    context.CancelFunc

	logger logger.Logger
}

// New constructs a Service around the resolved capabilities.
func New(caps capability.Set, opts ...Option) *Service {
	s := &Service{
		caps: caps,
		settings: model.Settings{
			Rounds:        tournament.DefaultRounds,
			PairsPerRound: tournament.DefaultPairsPerRound,
			KFactor:       elo.DefaultK,
			Seed:          tournament.DefaultSeed,
			DefaultRating: standings.DefaultRating,
			Candidates:    DefaultCandidates,
			Mode:          model.JudgeModeEvidence,
			Parallelism:   DefaultParallelism,
		},
		answerLimit:     judge.DefaultAnswerLimit,
		reasonLimit:     judge.DefaultReasonLimit,
		genTemperature:  generation.DefaultGenTemperature,
		execTemperature: generation.DefaultExecTemperature,
		workerCount:     max(runtime.NumCPU()/2, 1),
		queueSize:       DefaultQueueSize,
		dedupeSize:      DefaultDedupeSize,
		jobs:            make(map[string]*jobState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Settings returns the default run settings.
func (s *Service) Settings() model.Settings { return s.settings }

// Start initializes the queue, deduper and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tournament service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "tournament service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop refuses new jobs, drains the worker pool and releases owned
// resources. Running tournaments are cancelled once ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	pool, cancel, store, ownsStore := s.pool, s.cancel, s.store, s.ownsStore
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping tournament service...")

	// Workers read service state while finishing jobs, so s.mu is not held here.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
	}
	cancel()

	if ownsStore {
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	s.logger.Info(ctx, "tournament service stopped")
}

// Submit validates and enqueues job. With a known idempotency key the first
// job's id is returned and duplicate is true.
func (s *Service) Submit(ctx context.Context, job model.Job) (id string, duplicate bool, err error) { //nolint:gocritic // hugeParam: Job is a value type
	s.mu.RLock()
	started, q, deduper := s.started, s.queue, s.deduper
	s.mu.RUnlock()
	if !started {
		return "", false, ErrNotStarted
	}

	job.Task = task.Clean(job.Task)
	if err := task.Validate(job.Task); err != nil {
		return "", false, err
	}

	id = uuid.NewString()
	if job.Key != "" {
		if owner, seen := deduper.Claim(ctx, job.Key, id); seen {
			s.logger.Debug(ctx, "duplicate submission", logger.String("key", job.Key), logger.String("id", owner))
			return owner, true, nil
		}
	}

	job.ID = id
	job.Created = time.Now().UTC()
	s.setStatus(job.ID, model.JobQueued, nil)

	if err := q.Enqueue(ctx, job); err != nil {
		s.forget(job.ID)
		if job.Key != "" {
			deduper.Release(ctx, job.Key)
		}
		if errors.Is(err, jobqueue.ErrFull) {
			return "", false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return "", false, err
	}

	s.logger.Info(ctx, "tournament queued", logger.String("id", job.ID))
	return job.ID, false, nil
}

// Execute runs a queued job and records its status. It implements the
// worker pool's Executor.
func (s *Service) Execute(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: Job is a value type
	s.setStatus(job.ID, model.JobRunning, nil)
	_, err := s.Run(ctx, job)
	if err != nil {
		s.setStatus(job.ID, model.JobFailed, err)
		return err
	}
	s.setStatus(job.ID, model.JobComplete, nil)
	return nil
}

// Run executes the full pipeline for job and blocks until it finishes:
// candidates from the task or the Generator, answers when judging on
// evidence, the tournament itself and persistence. A cancelled run still
// stores and returns its partial result.
func (s *Service) Run(ctx context.Context, job model.Job) (*model.Result, error) { //nolint:gocritic // hugeParam: Job is a value type
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Task = task.Clean(job.Task)
	if err := task.Validate(job.Task); err != nil {
		return nil, err
	}
	if s.caps.Evaluator == nil {
		return nil, ErrNoEvaluator
	}
	settings := mergeSettings(s.settings, job.Settings)
	log := s.logger.With(logger.String("id", job.ID))

	texts, err := s.candidates(ctx, job.Task, settings.Candidates)
	if err != nil {
		metrics.RecordTournamentFinished("failed")
		return nil, err
	}
	entries := standings.EntriesFromTexts(texts)

	var evidence model.Evidence
	if settings.Mode == model.JudgeModeEvidence && len(entries) > 1 {
		evidence, err = s.precompute(ctx, entries, job.Task.TestCases, settings.Parallelism)
		if err != nil {
			metrics.RecordTournamentFinished("failed")
			return nil, err
		}
	}

	j := judge.New(s.caps.Evaluator,
		judge.WithMode(settings.Mode),
		judge.WithAnswerLimit(s.answerLimit),
		judge.WithReasonLimit(s.reasonLimit),
		judge.WithTemperature(s.judgeTemperature),
		judge.WithLogger(s.logger.Named("judge")),
	)
	runner := tournament.New(j,
		tournament.WithSettings(settings),
		tournament.WithLogger(log.Named("tournament")),
	)

	res, runErr := runner.Run(ctx, job.Task, entries, evidence)
	if res == nil {
		metrics.RecordTournamentFinished("failed")
		return nil, runErr
	}
	res.ID = job.ID

	if store := s.resultStore(); store != nil {
		if err := store.Save(context.WithoutCancel(ctx), res); err != nil {
			log.Error(ctx, "failed to save result", logger.Error(err))
			if runErr == nil {
				runErr = fmt.Errorf("save result: %w", err)
			}
		}
	}

	if runErr != nil {
		metrics.RecordTournamentFinished("failed")
		return res, runErr
	}
	metrics.RecordTournamentFinished(string(res.Termination))
	return res, nil
}

func (s *Service) candidates(ctx context.Context, t model.Task, count int) ([]string, error) {
	if len(t.Candidates) > 0 {
		return t.Candidates, nil
	}
	if s.caps.Generator == nil {
		return nil, ErrNoGenerator
	}
	gen := generation.NewGenerator(s.caps.Generator,
		generation.WithGenTemperature(s.genTemperature),
		generation.WithGeneratorLogger(s.logger.Named("generator")),
	)
	return gen.Generate(ctx, t, count)
}

func (s *Service) precompute(ctx context.Context, entries []standings.Entry, testCases []string, parallelism int) (model.Evidence, error) {
	if s.caps.AnswerProvider == nil {
		s.logger.Warn(ctx, "no answer provider configured; judging on prompts only")
		return nil, nil
	}
	cands := make([]model.Candidate, len(entries))
	for i, e := range entries {
		cands[i] = model.Candidate{ID: e.ID, Content: e.Content}
	}
	ap := generation.NewAnswerProvider(s.caps.AnswerProvider,
		generation.WithExecTemperature(s.execTemperature),
		generation.WithAnswerLogger(s.logger.Named("answers")),
	)
	return ap.Precompute(ctx, cands, testCases, parallelism)
}

// Result returns the stored result of a finished tournament.
func (s *Service) Result(ctx context.Context, id string) (*model.Result, error) {
	store := s.resultStore()
	if store == nil {
		return nil, ErrNotFound
	}
	res, err := store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res, err
}

// Status returns the job state for id. Results stored by an earlier process
// are reported as complete.
func (s *Service) Status(ctx context.Context, id string) (model.JobInfo, error) {
	s.jobsMu.RLock()
	st, ok := s.jobs[id]
	s.jobsMu.RUnlock()
	if ok {
		return st.info, nil
	}
	res, err := s.Result(ctx, id)
	if err != nil {
		return model.JobInfo{}, err
	}
	return model.JobInfo{ID: id, Status: model.JobComplete, Created: res.StartedAt, Updated: res.FinishedAt}, nil
}

// List returns summaries of stored results, most recent first.
func (s *Service) List(ctx context.Context, limit int) ([]repository.Summary, error) {
	store := s.resultStore()
	if store == nil {
		return nil, nil
	}
	return store.List(ctx, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	s.jobsMu.RLock()
	byStatus := map[model.JobStatus]int{}
	for _, st := range s.jobs {
		byStatus[st.info.Status]++
	}
	s.jobsMu.RUnlock()
	stats["jobs"] = byStatus

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["storedResults"] = s.store.Count(ctx)
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["idempotencyKeys"] = s.deduper.Size()
	}
	return stats
}

func (s *Service) resultStore() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

func (s *Service) setStatus(id string, status model.JobStatus, err error) {
	now := time.Now().UTC()
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		st = &jobState{info: model.JobInfo{ID: id, Created: now}}
		s.jobs[id] = st
	}
	st.info.Status = status
	st.info.Updated = now
	st.info.Error = ""
	if err != nil {
		st.info.Error = err.Error()
	}
}

func (s *Service) forget(id string) {
	s.jobsMu.Lock()
	delete(s.jobs, id)
	s.jobsMu.Unlock()
}

// mergeSettings overrides base with the non-zero fields of over.
func mergeSettings(base, over model.Settings) model.Settings {
	if over.Rounds > 0 {
		base.Rounds = over.Rounds
	}
	if over.PairsPerRound != 0 {
		base.PairsPerRound = over.PairsPerRound
	}
	if over.KFactor > 0 {
		base.KFactor = over.KFactor
	}
	if over.Seed != 0 {
		base.Seed = over.Seed
	}
	if over.DefaultRating > 0 {
		base.DefaultRating = over.DefaultRating
	}
	if over.Candidates > 0 {
		base.Candidates = over.Candidates
	}
	if over.Mode.Valid() {
		base.Mode = over.Mode
	}
	if over.Parallelism > 0 {
		base.Parallelism = over.Parallelism
	}
	return base
}
