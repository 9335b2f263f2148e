package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/database"
	"github.com/queryai/queryai/internal/nl2sql"
	"github.com/queryai/queryai/internal/observability"
	"github.com/queryai/queryai/internal/query/sqldb"
	"github.com/queryai/queryai/internal/schema"
)

type Dependencies struct {
	Generator  nl2sql.Generator
	Pool       database.PoolConfig
	SampleRows int
	Options    Options
}

// Session is one database connection with its schema captured at open time.
type Session struct {
	ID      string
	DB      *database.DB
	Schema  schema.Summary
	orch    *Orchestrator
	summary string
}

// OpenSession connects to dbURL (a file path or URL) and introspects it.
// Any failure is a *ConnectionError and no generation is attempted.
func OpenSession(ctx context.Context, dbURL string, deps Dependencies) (*Session, error) {
	id := uuid.NewString()
	logger := deps.Options.Logger
	if logger == nil {
		logger = (&Orchestrator{}).logger()
	}
	logger = logger.With(slog.String("session_id", id))
	display := redactedURL(dbURL)

	db, err := database.Open(ctx, dbURL, deps.Pool)
	if err != nil {
		observability.ObserveSession("connection_failed")
		logger.ErrorContext(ctx, "database_open_failed", slog.String("database", display), slog.String("error", err.Error()))
		return nil, &ConnectionError{Database: display, Err: err}
	}

	engine := sqldb.NewEngine(db)
	summary, err := schema.NewIntrospector(db, engine, deps.SampleRows).Summarize(ctx)
	if err != nil {
		_ = db.Close()
		observability.ObserveSession("connection_failed")
		logger.ErrorContext(ctx, "schema_introspection_failed", slog.String("database", display), slog.String("error", err.Error()))
		return nil, &ConnectionError{Database: display, Err: err}
	}
	logger.InfoContext(ctx, "session_opened",
		slog.String("database", display),
		slog.String("dialect", string(db.Dialect())),
		slog.Int("tables", len(summary.Tables)),
	)

	options := deps.Options
	options.Logger = logger
	return &Session{
		ID:      id,
		DB:      db,
		Schema:  summary,
		orch:    &Orchestrator{Generator: deps.Generator, Engine: engine, Options: options},
		summary: summary.Text(),
	}, nil
}

func (s *Session) Dialect() database.Dialect {
	return s.DB.Dialect()
}

// Ask runs one question through the orchestrator.
func (s *Session) Ask(ctx context.Context, question string) (Result, error) {
	result, err := s.orch.Run(ctx, Question{
		SessionID: s.ID,
		Text:      strings.TrimSpace(question),
		Dialect:   s.Dialect(),
		Schema:    s.summary,
	})
	observability.ObserveSession(sessionStatus(err))
	return result, err
}

func (s *Session) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func sessionStatus(err error) string {
	var generationErr *GenerationError
	var exhaustedErr *ExhaustedError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &exhaustedErr):
		return "exhausted"
	case errors.As(err, &generationErr):
		return "generation_failed"
	default:
		return "failed"
	}
}

func redactedURL(raw string) string {
	target, err := database.ParseURL(raw)
	if err == nil {
		return target.Redacted()
	}
	if parsed, parseErr := url.Parse(strings.TrimSpace(raw)); parseErr == nil {
		return parsed.Redacted()
	}
	return "<unparseable database url>"
}

// DependenciesFromConfig maps the process configuration onto session
// dependencies.
func DependenciesFromConfig(cfg config.Config, generator nl2sql.Generator, logger *slog.Logger) Dependencies {
	return Dependencies{
		Generator: generator,
		Pool: database.PoolConfig{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			PingTimeout:  cfg.Database.PingTimeout,
		},
		SampleRows: cfg.Database.SchemaSampleRows,
		Options: Options{
			GenerateTimeout: cfg.AI.Timeout,
			ExecTimeout:     cfg.Database.ExecTimeout,
			RowLimit:        cfg.Database.RowLimit,
			AnswerEnabled:   cfg.AI.AnswerEnabled,
			Logger:          logger,
		},
	}
}
