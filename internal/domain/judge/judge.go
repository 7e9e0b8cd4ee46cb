// Package judge decides pairwise matches by asking an evaluator for a strict
// two-line verdict and parsing it tolerantly.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/logger"
	"github.com/okian/promptelo/pkg/metrics"
)

// Defaults for truncation and sampling.
const (
	DefaultAnswerLimit = 1200
	DefaultReasonLimit = 160
	ellipsis           = "…"
)

var (
	winnerRe = regexp.MustCompile(`(?i)WINNER:\s*(DRAW|A|B)\b`)
	reasonRe = regexp.MustCompile(`(?i)REASON:\s*(\S.*)`)
)

// Judge compares two candidates for one task.
type Judge struct {
	evaluator   capability.Completer
	mode        model.JudgeMode
	answerLimit int
	reasonLimit int
	temperature *float32
	logger      logger.Logger
}

// Option configures a Judge.
type Option func(*Judge)

// WithMode selects evidence or prompt-only judging.
func WithMode(m model.JudgeMode) Option {
	return func(j *Judge) {
		if m.Valid() {
			j.mode = m
		}
	}
}

// WithAnswerLimit caps each answer shown to the evaluator, in runes.
func WithAnswerLimit(n int) Option {
	return func(j *Judge) {
		if n > 0 {
			j.answerLimit = n
		}
	}
}

// WithReasonLimit caps the stored reason, in runes.
func WithReasonLimit(n int) Option {
	return func(j *Judge) {
		if n > 0 {
			j.reasonLimit = n
		}
	}
}

// WithTemperature sets the evaluator sampling temperature.
func WithTemperature(t float32) Option {
	return func(j *Judge) { j.temperature = capability.Temperature(t) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(j *Judge) {
		if l != nil {
			j.logger = l
		}
	}
}

// New creates a judge backed by evaluator. Evidence mode and temperature 0 are the defaults.
func New(evaluator capability.Completer, opts ...Option) *Judge {
	j := &Judge{
		evaluator:   evaluator,
		mode:        model.JudgeModeEvidence,
		answerLimit: DefaultAnswerLimit,
		reasonLimit: DefaultReasonLimit,
		temperature: capability.Temperature(0),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logger.Get().Named("judge")
	}
	return j
}

// Mode returns the configured judging mode.
func (j *Judge) Mode() model.JudgeMode { return j.mode }

// Decide asks the evaluator which of a and b better serves task. An unparseable
// response is a draw, never an error; only evaluator failures are returned.
func (j *Judge) Decide(ctx context.Context, task model.Task, a, b model.Candidate, evidence model.Evidence) (model.Verdict, error) {
	prompt := j.Prompt(task, a, b, evidence)

	resp, err := j.evaluator.Complete(ctx, capability.Request{
		Prompt:      prompt,
		Temperature: j.temperature,
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("judge %s vs %s: %w", a.ID, b.ID, err)
	}

	outcome, reason, parsed := ParseVerdict(resp.Text)
	v := model.Verdict{
		Outcome: outcome,
		Reason:  Truncate(reason, j.reasonLimit),
		Backend: resp.Backend,
		Parsed:  parsed,
	}
	if !parsed {
		metrics.RecordVerdictUnparseable()
		j.logger.Warn(ctx, "verdict unparseable; scoring as draw",
			logger.String("a", a.ID),
			logger.String("b", b.ID),
			logger.String("backend", resp.Backend),
			logger.String("raw", Truncate(resp.Text, j.reasonLimit)),
		)
	}
	return v, nil
}

// Prompt renders the evaluator input. Evidence mode falls back to prompt-only
// when either side has no answers for the test cases.
func (j *Judge) Prompt(task model.Task, a, b model.Candidate, evidence model.Evidence) string {
	if j.mode == model.JudgeModeEvidence {
		ansA, okA := evidence[a.ID]
		ansB, okB := evidence[b.ID]
		if okA && okB && len(ansA) >= len(task.TestCases) && len(ansB) >= len(task.TestCases) {
			return EvidencePrompt(task, ansA, ansB, j.answerLimit)
		}
	}
	return PromptOnlyPrompt(task, a, b)
}

// EvidencePrompt shows each test case with both sides' truncated answers.
func EvidencePrompt(task model.Task, answersA, answersB []string, limit int) string {
	var sb strings.Builder
	sb.WriteString("You are a strict evaluator. Decide which variant (A or B) solves the task better.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(task.Description)
	sb.WriteString("\n\nCriteria (by importance):\n")
	sb.WriteString("1) Correctness and completeness with respect to the task and tests\n")
	sb.WriteString("2) No hallucinations or unwarranted assumptions\n")
	sb.WriteString("3) Practicality, applicability, structure\n")
	sb.WriteString("4) Following the required format, if any\n\n")
	sb.WriteString("COMPARISON:\n")
	for i, tc := range task.TestCases {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "TEST #%d:\n%s\n\nANSWER A:\n%s\n\nANSWER B:\n%s\n",
			i+1, tc, Truncate(answersA[i], limit), Truncate(answersB[i], limit))
	}
	sb.WriteString("\nRespond strictly in this format:\nWINNER: A|B|DRAW\nREASON: <one short sentence>")
	return sb.String()
}

// PromptOnlyPrompt shows only the two candidate texts.
func PromptOnlyPrompt(task model.Task, a, b model.Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are a strict evaluator. Pick the better system prompt for the task.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(task.Description)
	sb.WriteString("\n\nPROMPT A:\n")
	sb.WriteString(a.Content)
	sb.WriteString("\n\nPROMPT B:\n")
	sb.WriteString(b.Content)
	sb.WriteString("\n\nCriteria:\n")
	sb.WriteString("- Clarity of instructions\n")
	sb.WriteString("- Risk control (hallucinations, checks)\n")
	sb.WriteString("- Quality of the answer format\n")
	sb.WriteString("- Generality across the tests\n\n")
	sb.WriteString("Respond strictly:\nWINNER: A|B|DRAW\nREASON: <one short sentence>")
	return sb.String()
}

// ParseVerdict extracts the WINNER and REASON fields from free-form text.
// Without a WINNER field the outcome is a draw and parsed is false.
func ParseVerdict(raw string) (outcome model.Outcome, reason string, parsed bool) {
	outcome = model.OutcomeDraw
	if m := winnerRe.FindStringSubmatch(raw); m != nil {
		outcome, parsed = model.ParseOutcome(m[1])
	}
	if m := reasonRe.FindStringSubmatch(raw); m != nil {
		reason = strings.TrimSpace(m[1])
	}
	return outcome, reason, parsed
}

// Truncate caps s at limit runes, marking the cut with an ellipsis.
// A limit <= 0 leaves s unchanged.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit]), func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }) + ellipsis
}
