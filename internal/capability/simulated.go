package capability

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
)

const defaultSimulatedSeed = 42

// Responder produces the simulated text for a request.
type Responder func(rng *rand.Rand, req Request) string

// SimulatedBackend is an offline backend with seeded randomness and an
// optional latency range. It stands in for a model in dry runs and tests.
// Every request draws from its own generator derived from the seed and the
// request text, so answers do not depend on call order.
type SimulatedBackend struct {
	name       string
	minLatency time.Duration
	maxLatency time.Duration
	noTemp     bool
	respond    Responder
	seed       int64
}

// SimulatedOption configures a SimulatedBackend.
type SimulatedOption func(*SimulatedBackend)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimulatedOption {
	return func(s *SimulatedBackend) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed sets the seed responses are derived from.
func WithSeed(seed int64) SimulatedOption {
	return func(s *SimulatedBackend) { s.seed = seed }
}

// WithResponder sets how responses are produced.
func WithResponder(r Responder) SimulatedOption {
	return func(s *SimulatedBackend) {
		if r != nil {
			s.respond = r
		}
	}
}

// WithTemperatureRejected makes the backend reject the temperature parameter.
func WithTemperatureRejected() SimulatedOption {
	return func(s *SimulatedBackend) { s.noTemp = true }
}

// NewSimulatedBackend creates a simulated backend. Without a responder it judges.
func NewSimulatedBackend(name string, opts ...SimulatedOption) *SimulatedBackend {
	s := &SimulatedBackend{
		name:    name,
		respond: JudgeResponder,
		seed:    defaultSimulatedSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the backend name.
func (s *SimulatedBackend) Name() string { return s.name }

// Complete waits for the simulated latency and returns the responder's text.
func (s *SimulatedBackend) Complete(ctx context.Context, req Request) (string, error) {
	if s.noTemp && req.Temperature != nil {
		return "", fmt.Errorf("simulated %s: %w", s.name, ErrUnsupportedTemperature)
	}

	rng := rand.New(rand.NewSource(s.requestSeed(req))) //nolint:gosec // deterministic simulation
	var latency time.Duration
	if s.maxLatency > s.minLatency {
		latency = s.minLatency + time.Duration(rng.Int63n(int64(s.maxLatency-s.minLatency)))
	}
	text := s.respond(rng, req)

	if latency > 0 {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("simulated %s: %w", s.name, ctx.Err())
		case <-time.After(latency):
		}
	}
	return text, nil
}

func (s *SimulatedBackend) requestSeed(req Request) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s.seed))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(req.System))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Prompt))
	return int64(h.Sum64())
}

// JudgeResponder returns a random verdict in the evaluator's strict format.
func JudgeResponder(rng *rand.Rand, _ Request) string {
	verdicts := [...]string{"A", "B", "DRAW", "A", "B"}
	return fmt.Sprintf("WINNER: %s\nREASON: simulated preference", verdicts[rng.Intn(len(verdicts))])
}

// EchoResponder answers with the first line of the prompt.
func EchoResponder(_ *rand.Rand, req Request) string {
	line, _, _ := strings.Cut(strings.TrimSpace(req.Prompt), "\n")
	return "Simulated answer to: " + line
}

var simulatedStyles = [...]string{
	"Answer concisely and list every constraint as a bullet.",
	"Think step by step, then give a short structured answer with headings.",
	"Act as a domain expert; state assumptions explicitly and avoid speculation.",
	"Answer in a table of constraint, reason and mitigation.",
	"Give a direct answer first, then caveats, then practical tips.",
	"Be precise; if information is missing, say so instead of guessing.",
	"Use plain language for a non-expert reader and keep each point under 20 words.",
	"Group the answer into storage, logistics and usage sections.",
}

// ListResponder returns n distinct system prompts, one per line.
func ListResponder(n int) Responder {
	return func(rng *rand.Rand, _ Request) string {
		var sb strings.Builder
		offset := rng.Intn(len(simulatedStyles))
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "%d. You are careful assistant #%d. %s\n", i+1, i+1, simulatedStyles[(offset+i)%len(simulatedStyles)])
		}
		return sb.String()
	}
}
