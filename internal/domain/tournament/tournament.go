// Package tournament runs round-based pairwise tournaments and turns verdicts
// into Elo ratings.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/promptelo/internal/domain/elo"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/domain/pairing"
	"github.com/okian/promptelo/internal/domain/standings"
	"github.com/okian/promptelo/pkg/logger"
	"github.com/okian/promptelo/pkg/metrics"
)

// Defaults for a run.
const (
	DefaultRounds        = 12
	DefaultPairsPerRound = 8
	DefaultSeed          = 42
	DefaultParallelism   = 1
)

// ErrAlreadyStarted is returned when Run is called on a runner that has left Idle.
var ErrAlreadyStarted = errors.New("tournament: runner already started")

// State is the runner lifecycle.
type State string

// Runner states.
const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
)

// Judge decides one match.
type Judge interface {
	Decide(ctx context.Context, task model.Task, a, b model.Candidate, evidence model.Evidence) (model.Verdict, error)
}

// MatchError is a failure isolated to one match.
type MatchError struct {
	Round int
	A     string
	B     string
	Err   error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("round %d match %s vs %s: %v", e.Round, e.A, e.B, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }

// Runner drives one tournament. A Runner is single-use.
type Runner struct {
	judge    Judge
	settings model.Settings
	logger   logger.Logger
	onMatch  func(model.MatchOutcome)
	onRound  func(round int, order []model.Candidate)

	mu      sync.Mutex
	state   State
	round   int
	matches []model.MatchOutcome
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettings overrides the run settings; zero fields keep their defaults.
func WithSettings(s model.Settings) Option {
	return func(r *Runner) {
		if s.Rounds > 0 {
			r.settings.Rounds = s.Rounds
		}
		if s.PairsPerRound != 0 {
			r.settings.PairsPerRound = s.PairsPerRound
		}
		if s.KFactor > 0 {
			r.settings.KFactor = s.KFactor
		}
		if s.Seed != 0 {
			r.settings.Seed = s.Seed
		}
		if s.DefaultRating > 0 {
			r.settings.DefaultRating = s.DefaultRating
		}
		if s.Parallelism > 0 {
			r.settings.Parallelism = s.Parallelism
		}
		if s.Mode.Valid() {
			r.settings.Mode = s.Mode
		}
		if s.Candidates > 0 {
			r.settings.Candidates = s.Candidates
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMatchHook is called for every recorded outcome, in log order.
func WithMatchHook(fn func(model.MatchOutcome)) Option {
	return func(r *Runner) { r.onMatch = fn }
}

// WithRoundHook is called after each played round with the re-sorted standings.
func WithRoundHook(fn func(round int, order []model.Candidate)) Option {
	return func(r *Runner) { r.onRound = fn }
}

// New creates an idle runner.
func New(judge Judge, opts ...Option) *Runner {
	r := &Runner{
		judge: judge,
		settings: model.Settings{
			Rounds:        DefaultRounds,
			PairsPerRound: DefaultPairsPerRound,
			KFactor:       elo.DefaultK,
			Seed:          DefaultSeed,
			DefaultRating: standings.DefaultRating,
			Parallelism:   DefaultParallelism,
			Mode:          model.JudgeModeEvidence,
		},
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("tournament")
	}
	return r
}

// Settings returns the effective settings.
func (r *Runner) Settings() model.Settings { return r.settings }

// State returns the lifecycle state and the round in progress.
func (r *Runner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.round
}

// Matches returns a copy of the match log so far.
func (r *Runner) Matches() []model.MatchOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.MatchOutcome, len(r.matches))
	copy(out, r.matches)
	return out
}

// Run registers entries and plays rounds until the round count is reached,
// pairs are exhausted or ctx is cancelled. Skipped matches are reported in
// Result.Failures. On cancellation the partial result is returned with the
// context error.
func (r *Runner) Run(ctx context.Context, task model.Task, entries []standings.Entry, evidence model.Evidence) (*model.Result, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	r.state = StateRunning
	r.mu.Unlock()
	defer func() { r.setState(StateComplete, r.currentRound()) }()

	store := standings.New(standings.WithDefaultRating(r.settings.DefaultRating))
	if err := store.Register(entries); err != nil {
		return nil, fmt.Errorf("tournament: %w", err)
	}
	metrics.RecordCandidatesRegistered(store.Len())
	metrics.AddActiveTournaments(1)
	defer metrics.AddActiveTournaments(-1)

	res := &model.Result{
		Task:      task,
		Settings:  r.settings,
		StartedAt: time.Now().UTC(),
	}
	log := r.logger.With(logger.Int64("seed", r.settings.Seed))

	if store.Len() < 2 {
		log.Warn(ctx, "not enough candidates for a match", logger.Int("candidates", store.Len()))
		res.Termination = model.TerminationNoEntrants
		r.finish(res, store)
		return res, nil
	}

	sampler := pairing.NewSampler(r.settings.Seed)
	var runErr error

	for round := 1; round <= r.settings.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			res.Termination = model.TerminationCancelled
			runErr = err
			break
		}
		r.setState(StateRunning, round)

		order := store.CurrentOrder()
		pairs := sampler.Sample(order, r.settings.PairsPerRound)
		if len(pairs) == 0 {
			log.Info(ctx, "pairs exhausted", logger.Int("round", round))
			res.Termination = model.TerminationExhausted
			break
		}

		outcomes, failures := r.playRound(ctx, task, round, pairs, store, evidence)

		cancelled := false
		for i := range pairs {
			if failures[i] != nil {
				if ctx.Err() != nil && errors.Is(failures[i], ctx.Err()) {
					cancelled = true
					continue
				}
				res.Failures = append(res.Failures, model.MatchFailure{
					Round:      round,
					CandidateA: pairs[i].A.ID,
					CandidateB: pairs[i].B.ID,
					Error:      failures[i].Error(),
				})
				continue
			}
			if outcomes[i] != nil {
				r.record(*outcomes[i])
			}
		}

		res.RoundsPlayed = round
		metrics.RecordRoundPlayed()
		sorted := store.CurrentOrder()
		log.Debug(ctx, "round complete",
			logger.Int("round", round),
			logger.Int("pairs", len(pairs)),
			logger.String("leader", sorted[0].ID),
		)
		if r.onRound != nil {
			r.onRound(round, sorted)
		}

		if cancelled {
			res.Termination = model.TerminationCancelled
			runErr = ctx.Err()
			break
		}
	}

	if res.Termination == "" {
		res.Termination = model.TerminationRounds
	}
	r.finish(res, store)
	log.Info(ctx, "tournament finished",
		logger.String("termination", string(res.Termination)),
		logger.Int("rounds", res.RoundsPlayed),
		logger.Int("matches", len(res.Matches)),
		logger.Int("skipped", len(res.Failures)),
	)
	if runErr != nil {
		return res, fmt.Errorf("tournament: %w", runErr)
	}
	return res, nil
}

// playRound judges disjoint pairs concurrently. Results are indexed by pair.
func (r *Runner) playRound(ctx context.Context, task model.Task, round int, pairs []pairing.Pair, store *standings.Store, evidence model.Evidence) ([]*model.MatchOutcome, []error) {
	outcomes := make([]*model.MatchOutcome, len(pairs))
	failures := make([]error, len(pairs))

	var g errgroup.Group
	g.SetLimit(max(r.settings.Parallelism, 1))
	for i, p := range pairs {
		g.Go(func() error {
			out, err := r.play(ctx, task, round, p, store, evidence)
			if err != nil {
				failures[i] = err
				return nil
			}
			outcomes[i] = &out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, failures
}

func (r *Runner) play(ctx context.Context, task model.Task, round int, p pairing.Pair, store *standings.Store, evidence model.Evidence) (model.MatchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return model.MatchOutcome{}, err
	}

	v, err := r.judge.Decide(ctx, task, p.A, p.B, evidence)
	if err != nil {
		if ctx.Err() != nil {
			return model.MatchOutcome{}, ctx.Err()
		}
		metrics.RecordMatchSkipped()
		r.logger.Error(ctx, "match skipped",
			logger.Int("round", round),
			logger.String("a", p.A.ID),
			logger.String("b", p.B.ID),
			logger.Error(err),
		)
		return model.MatchOutcome{}, &MatchError{Round: round, A: p.A.ID, B: p.B.ID, Err: err}
	}

	before := model.RatingPair{A: p.A.Rating, B: p.B.Rating}
	newA, newB := elo.Update(before.A, before.B, v.Outcome.ScoreA(), r.settings.KFactor)
	if err := store.Apply(p.A.ID, newA); err != nil {
		return model.MatchOutcome{}, &MatchError{Round: round, A: p.A.ID, B: p.B.ID, Err: err}
	}
	if err := store.Apply(p.B.ID, newB); err != nil {
		return model.MatchOutcome{}, &MatchError{Round: round, A: p.A.ID, B: p.B.ID, Err: err}
	}

	metrics.RecordMatchJudged(string(v.Outcome))
	metrics.RecordRatingDelta(newA - before.A)
	metrics.RecordRatingDelta(newB - before.B)

	return model.MatchOutcome{
		Round:        round,
		CandidateA:   p.A.ID,
		CandidateB:   p.B.ID,
		Verdict:      v.Outcome,
		EvidenceNote: v.Note(),
		RatingBefore: before,
		RatingAfter:  model.RatingPair{A: newA, B: newB},
	}, nil
}

func (r *Runner) record(m model.MatchOutcome) {
	r.mu.Lock()
	r.matches = append(r.matches, m)
	r.mu.Unlock()
	if r.onMatch != nil {
		r.onMatch(m)
	}
}

func (r *Runner) finish(res *model.Result, store *standings.Store) {
	res.Standings = store.CurrentOrder()
	res.Matches = r.Matches()
	res.FinishedAt = time.Now().UTC()
}

func (r *Runner) setState(s State, round int) {
	r.mu.Lock()
	r.state = s
	r.round = round
	r.mu.Unlock()
}

func (r *Runner) currentRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}
