// Package model contains the domain types shared by the tournament engine,
// the service layer and the adapters.
package model

import (
	"strings"
	"time"
)

// Candidate is one ranked text entity, typically a system prompt.
type Candidate struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Rating  float64 `json:"rating"`
}

// Outcome is the judged result of one pairwise comparison.
type Outcome string

// Possible outcomes. A and B refer to the pair's sides, not candidate ids.
const (
	OutcomeA    Outcome = "A"
	OutcomeB    Outcome = "B"
	OutcomeDraw Outcome = "DRAW"
)

// ParseOutcome maps a case-insensitive token to an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeA:
		return OutcomeA, true
	case OutcomeB:
		return OutcomeB, true
	case OutcomeDraw:
		return OutcomeDraw, true
	}
	return OutcomeDraw, false
}

// ScoreA returns side A's Elo score for the outcome: 1, 0 or 0.5.
func (o Outcome) ScoreA() float64 {
	switch o {
	case OutcomeA:
		return 1
	case OutcomeB:
		return 0
	default:
		return 0.5
	}
}

// Verdict is the judge's decision for one pair.
type Verdict struct {
	Outcome Outcome `json:"outcome"`
	// Reason is the evaluator's advisory one-liner, truncated for display.
	Reason string `json:"reason"`
	// Backend names the evaluator backend that answered.
	Backend string `json:"backend"`
	// Parsed is false when no WINNER line was found and the draw is implicit.
	Parsed bool `json:"parsed"`
}

// Note formats the verdict as a short evidence note for the match log.
func (v Verdict) Note() string {
	if v.Backend == "" {
		return v.Reason
	}
	if v.Reason == "" {
		return "[judge=" + v.Backend + "]"
	}
	return "[judge=" + v.Backend + "] " + v.Reason
}

// RatingPair holds ratings of both sides of a match.
type RatingPair struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// MatchOutcome is the immutable record of one judged pair.
type MatchOutcome struct {
	Round        int        `json:"round"`
	CandidateA   string     `json:"candidate_a"`
	CandidateB   string     `json:"candidate_b"`
	Verdict      Outcome    `json:"verdict"`
	EvidenceNote string     `json:"evidence_note"`
	RatingBefore RatingPair `json:"rating_before"`
	RatingAfter  RatingPair `json:"rating_after"`
}

// WinnerID returns the id of the winning candidate, or "DRAW".
func (m MatchOutcome) WinnerID() string {
	switch m.Verdict {
	case OutcomeA:
		return m.CandidateA
	case OutcomeB:
		return m.CandidateB
	default:
		return string(OutcomeDraw)
	}
}

// MatchFailure records a match that was skipped because judging failed.
type MatchFailure struct {
	Round      int    `json:"round"`
	CandidateA string `json:"candidate_a"`
	CandidateB string `json:"candidate_b"`
	Error      string `json:"error"`
}

// Task is one comparison unit: what the candidates are for and how they are tested.
type Task struct {
	Description string   `json:"description" yaml:"description" validate:"required"`
	TestCases   []string `json:"test_cases" yaml:"test_cases" validate:"required,min=1,dive,required"`
	// Candidates, when set, are used as-is and generation is skipped.
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty" validate:"omitempty,dive,required"`
}

// Evidence maps a candidate id to its answers, one per test case in order.
type Evidence map[string][]string

// JudgeMode selects what the evaluator is shown.
type JudgeMode string

// Judge modes.
const (
	// JudgeModeEvidence shows the evaluator each candidate's answers to the test cases.
	JudgeModeEvidence JudgeMode = "evidence"
	// JudgeModePromptOnly shows the evaluator only the candidate texts.
	JudgeModePromptOnly JudgeMode = "prompt_only"
)

// Valid reports whether m is a known mode.
func (m JudgeMode) Valid() bool {
	return m == JudgeModeEvidence || m == JudgeModePromptOnly
}

// Settings are the tunables of a single tournament run.
type Settings struct {
	Rounds        int       `json:"rounds"`
	PairsPerRound int       `json:"pairs_per_round"`
	KFactor       float64   `json:"k_factor"`
	Seed          int64     `json:"seed"`
	DefaultRating float64   `json:"default_rating"`
	Candidates    int       `json:"candidates"`
	Mode          JudgeMode `json:"mode"`
	Parallelism   int       `json:"parallelism"`
}

// Termination explains why the round loop stopped.
type Termination string

// Termination reasons.
const (
	TerminationRounds     Termination = "rounds_reached"
	TerminationExhausted  Termination = "pairs_exhausted"
	TerminationCancelled  Termination = "cancelled"
	TerminationNoEntrants Termination = "too_few_candidates"
)

// Result is the output of a tournament: final standings plus the audit log.
type Result struct {
	ID           string         `json:"id"`
	Task         Task           `json:"task"`
	Settings     Settings       `json:"settings"`
	Standings    []Candidate    `json:"standings"`
	Matches      []MatchOutcome `json:"matches"`
	Failures     []MatchFailure `json:"failures,omitempty"`
	RoundsPlayed int            `json:"rounds_played"`
	Termination  Termination    `json:"termination"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Best returns the top candidate, if any.
func (r *Result) Best() (Candidate, bool) {
	if r == nil || len(r.Standings) == 0 {
		return Candidate{}, false
	}
	return r.Standings[0], true
}

// JobStatus is the lifecycle state of a submitted tournament.
type JobStatus string

// Job statuses.
const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is a tournament request flowing through the queue.
type Job struct {
	ID       string    `json:"id"`
	Task     Task      `json:"task"`
	Settings Settings  `json:"settings"`
	Created  time.Time `json:"created"`
	// Key is an optional idempotency key; resubmitting it returns the first job.
	Key string `json:"key,omitempty"`
}

// JobInfo is the externally visible state of a job.
type JobInfo struct {
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}
