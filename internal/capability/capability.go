// Package capability invokes external text capabilities (generation, answering,
// judging) through ordered lists of backends with first-success-wins fallback.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/promptelo/pkg/logger"
	"github.com/okian/promptelo/pkg/metrics"
)

// Capability names used for logging, metrics and errors.
const (
	Generator      = "generator"
	AnswerProvider = "answer_provider"
	Evaluator      = "evaluator"
)

// Sentinel errors.
var (
	// ErrUnsupportedTemperature is returned by a backend that rejects the
	// sampling temperature parameter.
	ErrUnsupportedTemperature = errors.New("temperature not supported")
	// ErrEmptyResponse is returned by a backend that produced no choices.
	ErrEmptyResponse = errors.New("empty response")
	// ErrExhausted matches every *ExhaustedError.
	ErrExhausted = errors.New("capability exhausted")
)

// Request is one text completion request.
type Request struct {
	System string
	Prompt string
	// Temperature is optional; nil leaves the backend default.
	Temperature *float32
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float32) *float32 {
	return &t
}

// Response is a completion plus the backend that produced it.
type Response struct {
	Text    string
	Backend string
}

// Backend is one concrete way to fulfil a capability, e.g. a single model.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Completer is what consumers of a capability depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ExhaustedError reports that every backend of a capability failed.
type ExhaustedError struct {
	Capability string
	Backends   []string
	Last       error
}

func (e *ExhaustedError) Error() string {
	if len(e.Backends) == 0 {
		return fmt.Sprintf("%s: no backends configured", e.Capability)
	}
	return fmt.Sprintf("%s: all backends failed [%s]: %v", e.Capability, strings.Join(e.Backends, ", "), e.Last)
}

// Unwrap exposes both ErrExhausted and the last backend error.
func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrExhausted}
	}
	return []error{ErrExhausted, e.Last}
}

// Chain is an ordered list of backends for one named capability. It remembers
// which backends rejected the temperature parameter and stops sending it to them.
type Chain struct {
	name     string
	backends []Backend
	noTemp   sync.Map
	logger   logger.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(l logger.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChain builds a chain that tries backends in order.
func NewChain(name string, backends []Backend, opts ...ChainOption) *Chain {
	c := &Chain{
		name:     name,
		backends: backends,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("capability")
	}
	c.logger = c.logger.With(logger.String("capability", name))
	return c
}

// Name returns the capability name.
func (c *Chain) Name() string { return c.name }

// Backends returns the backend names in order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Complete returns the first successful backend response. Context errors are
// returned as-is; only backend failures count towards exhaustion.
func (c *Chain) Complete(ctx context.Context, req Request) (Response, error) {
	var last error
	for i, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("%s: %w", c.name, err)
		}
		if i > 0 {
			metrics.RecordCapabilityFallback(c.name)
		}

		text, err := c.invoke(ctx, b, req)
		if err == nil {
			return Response{Text: text, Backend: b.Name()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("%s: %w", c.name, ctxErr)
		}
		last = err
		c.logger.Warn(ctx, "backend failed",
			logger.String("backend", b.Name()),
			logger.Error(err),
		)
	}

	metrics.RecordCapabilityExhausted(c.name)
	return Response{}, &ExhaustedError{Capability: c.name, Backends: c.Backends(), Last: last}
}

// invoke calls one backend, retrying once without temperature when the backend
// rejects it.
func (c *Chain) invoke(ctx context.Context, b Backend, req Request) (string, error) {
	if _, off := c.noTemp.Load(b.Name()); off {
		req.Temperature = nil
	}
	text, err := c.call(ctx, b, req)
	if err != nil && req.Temperature != nil && errors.Is(err, ErrUnsupportedTemperature) {
		c.noTemp.Store(b.Name(), struct{}{})
		c.logger.Debug(ctx, "backend rejects temperature; retrying without it",
			logger.String("backend", b.Name()),
		)
		req.Temperature = nil
		text, err = c.call(ctx, b, req)
	}
	return text, err
}

func (c *Chain) call(ctx context.Context, b Backend, req Request) (string, error) {
	start := time.Now()
	text, err := b.Complete(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordCapabilityCall(c.name, b.Name(), outcome, float64(time.Since(start).Milliseconds()))
	return text, err
}

// SupportsTemperature reports whether the chain still sends temperature to backend.
func (c *Chain) SupportsTemperature(backend string) bool {
	_, off := c.noTemp.Load(backend)
	return !off
}

// Set bundles the three capabilities the tournament pipeline consumes,
// resolved once at startup.
type Set struct {
	Generator      Completer
	AnswerProvider Completer
	Evaluator      Completer
}
