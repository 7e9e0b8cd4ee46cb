// Package generation produces candidate system prompts and their answers to
// test cases using the Generator and AnswerProvider capabilities.
package generation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/logger"
)

// Default sampling temperatures.
const (
	DefaultGenTemperature  = 0.9
	DefaultExecTemperature = 0.2
)

// ErrNoCandidates is returned when generation yields no usable text.
var ErrNoCandidates = errors.New("generation: no candidates produced")

var bulletRe = regexp.MustCompile(`^\s*[-*\d.)\]]+\s*`)

// Generator asks the Generator capability for candidate prompts.
type Generator struct {
	completer   capability.Completer
	temperature float32
	logger      logger.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGenTemperature sets the generation temperature.
func WithGenTemperature(t float32) GeneratorOption {
	return func(g *Generator) { g.temperature = t }
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l logger.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(c capability.Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{completer: c, temperature: DefaultGenTemperature}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("generator")
	}
	return g
}

// Generate returns up to count distinct candidate prompts for task. A short
// first answer is topped up by exactly one more request.
func (g *Generator) Generate(ctx context.Context, task model.Task, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("generation: count must be positive, got %d", count)
	}
	prompt := GenerationPrompt(task, count)
	req := capability.Request{Prompt: prompt, Temperature: capability.Temperature(g.temperature)}

	resp, err := g.completer.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	prompts := Normalize(resp.Text, count)

	if len(prompts) < count {
		need := count - len(prompts)
		g.logger.Warn(ctx, "under-generated candidates; requesting once more",
			logger.Int("want", count),
			logger.Int("got", len(prompts)),
		)
		extra, err := g.completer.Complete(ctx, req)
		switch {
		case err == nil:
			prompts = appendDistinct(prompts, Normalize(extra.Text, need), count)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("generation: %w", ctx.Err())
		default:
			g.logger.Warn(ctx, "top-up generation failed; proceeding with what we have",
				logger.Error(err),
			)
		}
	}

	if len(prompts) == 0 {
		return nil, ErrNoCandidates
	}
	g.logger.Info(ctx, "candidates generated",
		logger.String("backend", resp.Backend),
		logger.Int("count", len(prompts)),
	)
	return prompts, nil
}

func appendDistinct(have, more []string, limit int) []string {
	seen := make(map[string]struct{}, len(have))
	for _, p := range have {
		seen[p] = struct{}{}
	}
	for _, p := range more {
		if len(have) >= limit {
			break
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		have = append(have, p)
	}
	return have
}

// GenerationPrompt renders the request for n different system prompts.
func GenerationPrompt(task model.Task, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a prompt engineer. Generate %d different system prompts for solving the task.\n\n", n)
	sb.WriteString("Task:\n")
	sb.WriteString(task.Description)
	sb.WriteString("\n\nTest cases (for reference):\n")
	for _, tc := range task.TestCases {
		sb.WriteString("- ")
		sb.WriteString(tc)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRequirements:\n")
	sb.WriteString("- Each prompt must be usable as a system prompt.\n")
	sb.WriteString("- Prompts must differ in approach (structure, quality criteria, answer format).\n")
	sb.WriteString("- Return only the list of prompts, one per line. No explanations.")
	return sb.String()
}

// Normalize splits generator output into at most n prompts, stripping list
// markers and blank lines. Output with fewer than two items is kept whole.
func Normalize(text string, n int) []string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(bulletRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	if whole := strings.TrimSpace(text); len(cleaned) < 2 && whole != "" {
		cleaned = []string{whole}
	}
	if len(cleaned) > n {
		cleaned = cleaned[:n]
	}
	return cleaned
}

// AnswerProvider runs a candidate prompt against test cases.
type AnswerProvider struct {
	completer   capability.Completer
	temperature float32
	logger      logger.Logger
}

// AnswerOption configures an AnswerProvider.
type AnswerOption func(*AnswerProvider)

// WithExecTemperature sets the answering temperature.
func WithExecTemperature(t float32) AnswerOption {
	return func(a *AnswerProvider) { a.temperature = t }
}

// WithAnswerLogger sets the logger.
func WithAnswerLogger(l logger.Logger) AnswerOption {
	return func(a *AnswerProvider) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAnswerProvider creates an AnswerProvider.
func NewAnswerProvider(c capability.Completer, opts ...AnswerOption) *AnswerProvider {
	a := &AnswerProvider{completer: c, temperature: DefaultExecTemperature}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("answers")
	}
	return a
}

// Answer returns the candidate's answer to one test case.
func (a *AnswerProvider) Answer(ctx context.Context, candidateText, testCase string) (string, error) {
	resp, err := a.completer.Complete(ctx, capability.Request{
		System:      candidateText,
		Prompt:      testCase,
		Temperature: capability.Temperature(a.temperature),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Precompute answers every test case for every candidate, at most parallelism
// calls at a time. Any failure aborts and names the candidate.
func (a *AnswerProvider) Precompute(ctx context.Context, candidates []model.Candidate, testCases []string, parallelism int) (model.Evidence, error) {
	answers := make([][]string, len(candidates))
	for i := range answers {
		answers[i] = make([]string, len(testCases))
	}

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for ci, c := range candidates {
		for ti, tc := range testCases {
			g.Go(func() error {
				text, err := a.Answer(gctx, c.Content, tc)
				if err != nil {
					return fmt.Errorf("answers for %s test #%d: %w", c.ID, ti+1, err)
				}
				answers[ci][ti] = text
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	evidence := make(model.Evidence, len(candidates))
	for i, c := range candidates {
		evidence[c.ID] = answers[i]
	}
	a.logger.Info(ctx, "answers precomputed",
		logger.Int("candidates", len(candidates)),
		logger.Int("test_cases", len(testCases)),
	)
	return evidence, nil
}
