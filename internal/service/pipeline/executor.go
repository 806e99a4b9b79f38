// Package pipeline runs ordered, dependent steps and records a StepResult for
// each one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agent-bff/internal/domain"
)

// ErrAborted is returned by Run when an earlier step already failed.
var ErrAborted = errors.New("pipeline aborted by an earlier step failure")

// Outcome is what a successful step reports.
type Outcome struct {
	Message string
	Result  map[string]any
}

// StepFunc is the unit of work of one step.
type StepFunc func(ctx context.Context) (*Outcome, error)

// NamedResult pairs a step name with its result.
type NamedResult struct {
	Name    string
	Skipped bool
	Result  domain.StepResult
}

// Pipeline executes steps strictly in call order. Steps are never retried; the
// first failure aborts every later Run. A Pipeline belongs to a single run and
// is not safe for concurrent use.
type Pipeline struct {
	name    string
	logger  *slog.Logger
	now     func() time.Time
	results []NamedResult
	failed  bool
}

// New creates an empty pipeline.
func New(name string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		name:   name,
		logger: logger.With("component", "pipeline", "pipeline", name),
		now:    time.Now,
	}
}

// Run executes fn as step name and returns its StepResult. On failure the
// returned error is fn's error, unchanged; a panic inside fn is converted into
// a failed step.
func (p *Pipeline) Run(ctx context.Context, name string, fn StepFunc) (domain.StepResult, error) {
	if p.failed {
		return domain.StepResult{
			Message: name + " aborted",
			Error:   &domain.StepError{ErrorCode: domain.ErrCodeStepFailed, ErrorMessage: ErrAborted.Error()},
		}, ErrAborted
	}

	start := p.now()
	out, err := p.invoke(ctx, name, fn)
	elapsed := p.now().Sub(start).Milliseconds()

	var res domain.StepResult
	if err != nil {
		p.failed = true
		res = domain.StepResult{
			Success:    false,
			Message:    fmt.Sprintf("%s failed", name),
			Error:      domain.NewStepError(err),
			DurationMs: elapsed,
		}
		p.logger.Warn("step failed", "step", name, "duration_ms", elapsed,
			"error_code", res.Error.ErrorCode, "error", err)
	} else {
		res = domain.StepResult{
			Success:    true,
			Message:    fmt.Sprintf("%s succeeded", name),
			Result:     map[string]any{},
			DurationMs: elapsed,
		}
		if out != nil {
			if out.Message != "" {
				res.Message = out.Message
			}
			if out.Result != nil {
				res.Result = out.Result
			}
		}
		p.logger.Debug("step succeeded", "step", name, "duration_ms", elapsed)
	}
	p.results = append(p.results, NamedResult{Name: name, Result: res})
	return res, err
}

// Skip records an optional step the run opted out of. It counts as success.
func (p *Pipeline) Skip(name, reason string) domain.StepResult {
	res := domain.StepResult{
		Success: true,
		Message: fmt.Sprintf("%s skipped: %s", name, reason),
		Result:  map[string]any{"skipped": true},
	}
	p.results = append(p.results, NamedResult{Name: name, Skipped: true, Result: res})
	p.logger.Debug("step skipped", "step", name, "reason", reason)
	return res
}

// Results returns the results recorded so far, in execution order.
func (p *Pipeline) Results() []NamedResult {
	return append([]NamedResult(nil), p.results...)
}

// Success reports whether every recorded step succeeded or was skipped.
func (p *Pipeline) Success() bool {
	for _, r := range p.results {
		if !r.Result.Success {
			return false
		}
	}
	return true
}

func (p *Pipeline) invoke(ctx context.Context, name string, fn StepFunc) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("step panicked", "step", name, "panic", r)
			out, err = nil, fmt.Errorf("step %s panicked: %v", name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx)
}
