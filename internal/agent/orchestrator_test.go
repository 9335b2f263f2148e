package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/guard"
	"github.com/queryai/queryai/internal/nl2sql"
	"github.com/queryai/queryai/internal/query"
)

type fakeGenerator struct {
	replies   []string
	errAtCall map[int]error
	answer    string
	answerErr error

	calls          int
	generateCalls  int
	refineCalls    int
	answerCalls    int
	refineRequests []nl2sql.RefineRequest
	dialects       []database.Dialect
}

func (f *fakeGenerator) next(dialect database.Dialect) (string, error) {
	f.calls++
	f.dialects = append(f.dialects, dialect)
	if err, ok := f.errAtCall[f.calls]; ok {
		return "", err
	}
	if len(f.replies) == 0 {
		return "SELECT 1", nil
	}
	index := f.calls - 1
	if index >= len(f.replies) {
		index = len(f.replies) - 1
	}
	return f.replies[index], nil
}

func (f *fakeGenerator) Generate(_ context.Context, req nl2sql.GenerateRequest) (string, error) {
	f.generateCalls++
	return f.next(req.Dialect)
}

func (f *fakeGenerator) Refine(_ context.Context, req nl2sql.RefineRequest) (string, error) {
	f.refineCalls++
	f.refineRequests = append(f.refineRequests, req)
	return f.next(req.Dialect)
}

func (f *fakeGenerator) Answer(context.Context, nl2sql.AnswerRequest) (string, error) {
	f.answerCalls++
	return f.answer, f.answerErr
}

type fakeEngine struct {
	executed []string
	execute  func(ctx context.Context, sql string) (query.Result, error)
}

func (f *fakeEngine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	f.executed = append(f.executed, request.SQL)
	if f.execute == nil {
		return query.Result{Columns: []string{"x"}, Rows: [][]any{{int64(1)}}}, nil
	}
	return f.execute(ctx, request.SQL)
}

func newQuestion(text string) Question {
	return Question{SessionID: "test-session", Text: text, Dialect: database.DialectSQLite, Schema: "Table users: id (INTEGER)"}
}

func TestRunFirstAttemptSuccessNeverRefines(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"SELECT * FROM users LIMIT 10;"}}
	engine := &fakeEngine{}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	result, err := orch.Run(context.Background(), newQuestion("Show me the first 10 rows from the users table"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if generator.refineCalls != 0 {
		t.Fatalf("refine calls = %d", generator.refineCalls)
	}
	if result.SQL != "SELECT * FROM users LIMIT 10;" || result.AttemptCount() != 1 {
		t.Fatalf("result = %#v", result)
	}
	if result.Attempts[0].Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %q", result.Attempts[0].Outcome)
	}
	if generator.answerCalls != 0 {
		t.Fatalf("answer called while disabled")
	}
}

func TestRunNeverExecutesMoreThanMaxAttempts(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"SELECT a FROM t", "SELECT b FROM t", "SELECT c FROM t", "SELECT d FROM t"}}
	engine := &fakeEngine{execute: func(_ context.Context, sql string) (query.Result, error) {
		return query.Result{}, errors.New("no such column in " + sql)
	}}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	result, err := orch.Run(context.Background(), newQuestion("anything"))
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if len(engine.executed) != MaxAttempts {
		t.Fatalf("executions = %d", len(engine.executed))
	}
	if exhausted.Attempts != MaxAttempts || exhausted.LastSQL != "SELECT c FROM t" {
		t.Fatalf("exhausted = %#v", exhausted)
	}
	if exhausted.LastError != "no such column in SELECT c FROM t" {
		t.Fatalf("LastError = %q", exhausted.LastError)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Attempt != 3 {
		t.Fatalf("expected last *ExecutionError, got %v", err)
	}
	if result.Rows != nil || result.AttemptCount() != MaxAttempts {
		t.Fatalf("result = %#v", result)
	}

	if generator.generateCalls != 1 || generator.refineCalls != 2 {
		t.Fatalf("generate=%d refine=%d", generator.generateCalls, generator.refineCalls)
	}
	first := generator.refineRequests[0]
	if first.PriorSQL != "SELECT a FROM t" || first.PriorError != "no such column in SELECT a FROM t" {
		t.Fatalf("first refine = %#v", first)
	}
	if first.Question != "anything" || first.Schema != "Table users: id (INTEGER)" {
		t.Fatalf("refine context not carried: %#v", first.GenerateRequest)
	}
	for _, dialect := range generator.dialects {
		if dialect != database.DialectSQLite {
			t.Fatalf("dialect changed to %q", dialect)
		}
	}
}

func TestRunDeleteAllOrdersIsExhaustedWithoutExecuting(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"DELETE FROM orders;"}}
	engine := &fakeEngine{}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	result, err := orch.Run(context.Background(), newQuestion("Delete all orders"))
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want *ExhaustedError", err)
	}
	if len(engine.executed) != 0 {
		t.Fatalf("executions = %d", len(engine.executed))
	}
	if exhausted.Attempts != 3 || generator.refineCalls != 2 {
		t.Fatalf("attempts=%d refine=%d", exhausted.Attempts, generator.refineCalls)
	}
	var violation *PolicyViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected *PolicyViolation in chain, got %v", err)
	}
	var guardViolation *guard.Violation
	if !errors.As(err, &guardViolation) {
		t.Fatalf("expected *guard.Violation in chain, got %v", err)
	}
	if !strings.Contains(generator.refineRequests[0].PriorError, "not read-only") {
		t.Fatalf("refine error = %q", generator.refineRequests[0].PriorError)
	}
	for _, attempt := range result.Attempts {
		if attempt.Outcome != OutcomePolicyViolation {
			t.Fatalf("attempt %d outcome = %q", attempt.Index, attempt.Outcome)
		}
	}
}

func TestRunRecoversAfterPolicyViolation(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"DROP TABLE orders", "SELECT COUNT(*) FROM orders"}}
	engine := &fakeEngine{}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	result, err := orch.Run(context.Background(), newQuestion("Delete all orders"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.AttemptCount() != 2 || result.SQL != "SELECT COUNT(*) FROM orders" {
		t.Fatalf("result = %#v", result)
	}
	if len(engine.executed) != 1 {
		t.Fatalf("executions = %d", len(engine.executed))
	}
}

func TestRunGenerationFailureIsFatal(t *testing.T) {
	backendErr := errors.New("connection refused")
	generator := &fakeGenerator{
		replies:   []string{"SELECT nope FROM t"},
		errAtCall: map[int]error{2: backendErr},
	}
	engine := &fakeEngine{execute: func(context.Context, string) (query.Result, error) {
		return query.Result{}, errors.New("no such column: nope")
	}}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	_, err := orch.Run(context.Background(), newQuestion("q"))
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("Run() error = %v, want *GenerationError", err)
	}
	if genErr.Attempt != 2 || !errors.Is(err, backendErr) {
		t.Fatalf("generation error = %#v", genErr)
	}
	if generator.calls != 2 || len(engine.executed) != 1 {
		t.Fatalf("calls=%d executions=%d", generator.calls, len(engine.executed))
	}
}

func TestRunExecutionTimeoutCountsAsAttempt(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"SELECT slow()", "SELECT 1"}}
	engine := &fakeEngine{execute: func(ctx context.Context, sql string) (query.Result, error) {
		if sql == "SELECT slow()" {
			<-ctx.Done()
			return query.Result{}, ctx.Err()
		}
		return query.Result{Columns: []string{"1"}, Rows: [][]any{{int64(1)}}}, nil
	}}
	orch := &Orchestrator{Generator: generator, Engine: engine, Options: Options{ExecTimeout: 20 * time.Millisecond}}

	result, err := orch.Run(context.Background(), newQuestion("q"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.AttemptCount() != 2 {
		t.Fatalf("attempts = %d", result.AttemptCount())
	}
	if first := result.Attempts[0]; first.Outcome != OutcomeExecutionError || !strings.Contains(first.Error, "timed out") {
		t.Fatalf("first attempt = %#v", first)
	}
	if !strings.Contains(generator.refineRequests[0].PriorError, "timed out") {
		t.Fatalf("refine error = %q", generator.refineRequests[0].PriorError)
	}
}

func TestRunStopsBetweenAttemptsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	generator := &fakeGenerator{replies: []string{"SELECT broken"}}
	engine := &fakeEngine{execute: func(context.Context, string) (query.Result, error) {
		cancel()
		return query.Result{}, errors.New("syntax error")
	}}
	orch := &Orchestrator{Generator: generator, Engine: engine}

	result, err := orch.Run(ctx, newQuestion("q"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if generator.refineCalls != 0 || result.AttemptCount() != 1 {
		t.Fatalf("refine=%d attempts=%d", generator.refineCalls, result.AttemptCount())
	}
}

func TestRunAnswerFailureDoesNotFailSession(t *testing.T) {
	generator := &fakeGenerator{replies: []string{"SELECT 1"}, answerErr: errors.New("rate limited")}
	orch := &Orchestrator{Generator: generator, Engine: &fakeEngine{}, Options: Options{AnswerEnabled: true}}

	result, err := orch.Run(context.Background(), newQuestion("q"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if generator.answerCalls != 1 || result.Answer != "" {
		t.Fatalf("answerCalls=%d answer=%q", generator.answerCalls, result.Answer)
	}

	generator = &fakeGenerator{replies: []string{"SELECT 1"}, answer: "One row."}
	orch.Generator = generator
	result, err = orch.Run(context.Background(), newQuestion("q"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Answer != "One row." {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	generator := &fakeGenerator{}
	orch := &Orchestrator{Generator: generator, Engine: &fakeEngine{}}
	if _, err := orch.Run(context.Background(), newQuestion("   ")); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Run() error = %v", err)
	}
	if generator.calls != 0 {
		t.Fatalf("generator calls = %d", generator.calls)
	}
}
