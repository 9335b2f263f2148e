// Package agent runs the self-correcting question loop: generate a
// statement, check it is read-only, execute it, and on failure feed the
// error back to the generator for a bounded number of attempts.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/guard"
	"github.com/queryai/queryai/internal/nl2sql"
	"github.com/queryai/queryai/internal/observability"
	"github.com/queryai/queryai/internal/query"
	"github.com/queryai/queryai/internal/render"
)

// MaxAttempts bounds how many candidates one question may consume.
const MaxAttempts = 3

// answerRowLimit caps how many result rows go into the answer prompt.
const answerRowLimit = 50

type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomePolicyViolation Outcome = "policy_violation"
	OutcomeExecutionError  Outcome = "execution_error"
)

type Attempt struct {
	Index    int           `json:"index"`
	SQL      string        `json:"sql"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Result is what a session returns. On exhaustion it carries the attempt
// history but no rows.
type Result struct {
	SessionID string           `json:"session_id"`
	Question  string           `json:"question"`
	Dialect   database.Dialect `json:"dialect"`
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      [][]any          `json:"rows"`
	Attempts  []Attempt        `json:"attempts"`
	Answer    string           `json:"answer,omitempty"`
}

func (r Result) AttemptCount() int {
	return len(r.Attempts)
}

type Options struct {
	GenerateTimeout time.Duration
	ExecTimeout     time.Duration
	RowLimit        int
	AnswerEnabled   bool
	Logger          *slog.Logger
}

type Orchestrator struct {
	Generator nl2sql.Generator
	Engine    query.Engine
	Options   Options
}

// Question is the fixed input of one run. Dialect and Schema are captured
// once and passed unchanged to every generation call.
type Question struct {
	SessionID string
	Text      string
	Dialect   database.Dialect
	Schema    string
}

type state int

const (
	stateGenerating state = iota
	stateValidating
	stateExecuting
	stateRetry
	stateSuccess
	stateExhausted
)

// Run drives one question to SUCCESS or EXHAUSTED. A *GenerationError aborts
// immediately; guard and execution failures consume an attempt and are fed to
// the next Refine call. Cancellation is only observed between attempts.
func (o *Orchestrator) Run(ctx context.Context, q Question) (Result, error) {
	logger := o.logger().With(slog.String("session_id", q.SessionID))
	result := Result{SessionID: q.SessionID, Question: q.Text, Dialect: q.Dialect}
	if strings.TrimSpace(q.Text) == "" {
		return result, ErrEmptyQuestion
	}
	base := nl2sql.GenerateRequest{Question: q.Text, Dialect: q.Dialect, Schema: q.Schema}

	var (
		current   = stateGenerating
		attempt   = Attempt{Index: 1}
		candidate string
		executed  query.Result
		previous  *Attempt
	)
	for {
		switch current {
		case stateGenerating:
			sql, err := o.generate(ctx, base, previous)
			if err != nil {
				logger.ErrorContext(ctx, "generation_failed", slog.Int("attempt", attempt.Index), slog.String("error", err.Error()))
				return result, &GenerationError{Attempt: attempt.Index, Err: err}
			}
			candidate = sql
			attempt.SQL = sql
			current = stateValidating

		case stateValidating:
			if err := guard.Check(candidate); err != nil {
				attempt.Outcome = OutcomePolicyViolation
				attempt.Err = &PolicyViolation{Attempt: attempt.Index, SQL: candidate, Err: err}
				current = o.afterFailure(attempt.Index)
				break
			}
			current = stateExecuting

		case stateExecuting:
			res, elapsed, err := o.execute(ctx, candidate)
			attempt.Duration = elapsed
			if err != nil {
				attempt.Outcome = OutcomeExecutionError
				attempt.Err = &ExecutionError{Attempt: attempt.Index, SQL: candidate, Err: err}
				current = o.afterFailure(attempt.Index)
				break
			}
			attempt.Outcome = OutcomeSuccess
			executed = res
			current = stateSuccess

		case stateRetry:
			if err := ctx.Err(); err != nil {
				return result, err
			}
			previous = &result.Attempts[len(result.Attempts)-1]
			attempt = Attempt{Index: attempt.Index + 1}
			current = stateGenerating

		case stateSuccess:
			result.Attempts = append(result.Attempts, o.record(ctx, logger, attempt))
			result.SQL = candidate
			result.Columns = executed.Columns
			result.Rows = executed.Rows
			if o.Options.AnswerEnabled {
				result.Answer = o.answer(ctx, logger, result)
			}
			logger.InfoContext(ctx, "session_succeeded", slog.Int("attempts", len(result.Attempts)), slog.Int("rows", len(result.Rows)))
			return result, nil

		case stateExhausted:
			last := attempt
			logger.WarnContext(ctx, "session_exhausted", slog.Int("attempts", len(result.Attempts)), slog.String("last_error", last.Error))
			return result, &ExhaustedError{
				LastSQL:   last.SQL,
				LastError: last.Error,
				Attempts:  len(result.Attempts),
				Last:      last.Err,
			}
		}

		if current == stateRetry || current == stateExhausted {
			attempt = o.record(ctx, logger, attempt)
			result.Attempts = append(result.Attempts, attempt)
		}
	}
}

func (o *Orchestrator) afterFailure(index int) state {
	if index >= MaxAttempts {
		return stateExhausted
	}
	return stateRetry
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, attempt Attempt) Attempt {
	if attempt.Err != nil {
		attempt.Error = attempt.Err.Error()
	}
	observability.ObserveAttempt(string(attempt.Outcome))
	level := slog.LevelInfo
	if attempt.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "attempt_finished",
		slog.Int("attempt", attempt.Index),
		slog.String("outcome", string(attempt.Outcome)),
		slog.String("sql", attempt.SQL),
		slog.String("error", attempt.Error),
		slog.String("duration", attempt.Duration.String()),
	)
	return attempt
}

func (o *Orchestrator) generate(ctx context.Context, base nl2sql.GenerateRequest, previous *Attempt) (string, error) {
	if o.Generator == nil {
		return "", fmt.Errorf("generator is not configured")
	}
	callCtx, cancel := withTimeout(ctx, o.Options.GenerateTimeout)
	defer cancel()

	start := time.Now()
	defer func() { observability.ObserveGenerationLatency(time.Since(start)) }()
	if previous == nil {
		return o.Generator.Generate(callCtx, base)
	}
	return o.Generator.Refine(callCtx, nl2sql.RefineRequest{
		GenerateRequest: base,
		PriorSQL:        previous.SQL,
		PriorError:      previous.Error,
	})
}

func (o *Orchestrator) execute(ctx context.Context, sql string) (query.Result, time.Duration, error) {
	if o.Engine == nil {
		return query.Result{}, 0, fmt.Errorf("query engine is not configured")
	}
	callCtx, cancel := withTimeout(ctx, o.Options.ExecTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.Engine.Execute(callCtx, query.Request{SQL: sql, RowLimit: o.Options.RowLimit})
	elapsed := time.Since(start)
	observability.ObserveExecutionLatency(elapsed)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return query.Result{}, elapsed, fmt.Errorf("query timed out after %s: %w", o.Options.ExecTimeout, err)
	}
	return res, elapsed, err
}

// answer asks for a prose answer. Failure only costs the answer: the rows
// are already valid.
func (o *Orchestrator) answer(ctx context.Context, logger *slog.Logger, result Result) string {
	callCtx, cancel := withTimeout(ctx, o.Options.GenerateTimeout)
	defer cancel()

	text, err := o.Generator.Answer(callCtx, nl2sql.AnswerRequest{
		Question:   result.Question,
		SQL:        result.SQL,
		ResultText: render.TableString(result.Columns, result.Rows, answerRowLimit),
	})
	if err != nil {
		logger.WarnContext(ctx, "answer_failed", slog.String("error", err.Error()))
		return ""
	}
	return text
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Options.Logger != nil {
		return o.Options.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
