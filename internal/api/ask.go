package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/queryai/queryai/internal/agent"
	"github.com/queryai/queryai/internal/observability"
)

type askRequest struct {
	Database string `json:"database"`
	Question string `json:"question"`
}

type askResponse struct {
	SessionID      string          `json:"session_id"`
	Dialect        string          `json:"dialect"`
	SQL            string          `json:"sql"`
	Columns        []string        `json:"columns"`
	Rows           [][]any         `json:"rows"`
	RowCount       int             `json:"row_count"`
	Attempts       int             `json:"attempts"`
	AttemptHistory []agent.Attempt `json:"attempt_history"`
	NumericColumns []int           `json:"numeric_columns"`
	Answer         string          `json:"answer,omitempty"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.OpenSession == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	db := databaseFor(deps, req.Database)
	if db == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_REQUIRED", "database is required", false, nil)
		return
	}

	session, err := deps.OpenSession(r.Context(), db)
	if err != nil {
		writeAgentError(r.Context(), w, err)
		return
	}
	defer func() { _ = session.Close() }()

	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "question_received",
			slog.String("session_id", session.ID),
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		)
	}

	result, err := session.Ask(r.Context(), question)
	if err != nil {
		writeAgentError(r.Context(), w, err)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		SessionID:      result.SessionID,
		Dialect:        session.Dialect().DisplayName(),
		SQL:            result.SQL,
		Columns:        result.Columns,
		Rows:           rows,
		RowCount:       len(rows),
		Attempts:       result.AttemptCount(),
		AttemptHistory: result.Attempts,
		NumericColumns: NumericColumns(result.Columns, rows),
		Answer:         result.Answer,
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.OpenSession == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	db := databaseFor(deps, r.URL.Query().Get("database"))
	if db == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_REQUIRED", "database is required", false, nil)
		return
	}
	session, err := deps.OpenSession(r.Context(), db)
	if err != nil {
		writeAgentError(r.Context(), w, err)
		return
	}
	defer func() { _ = session.Close() }()

	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": session.Dialect().DisplayName(),
		"tables":  session.Schema.Tables,
		"summary": session.Schema.Text(),
	})
}

func databaseFor(deps Dependencies, requested string) string {
	if db := strings.TrimSpace(requested); db != "" {
		return db
	}
	return strings.TrimSpace(deps.DefaultDatabase)
}

func writeAgentError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		connErr      *agent.ConnectionError
		generateErr  *agent.GenerationError
		exhaustedErr *agent.ExhaustedError
	)
	switch {
	case errors.As(err, &connErr):
		writeError(ctx, w, http.StatusBadGateway, "CONNECTION_FAILED", err.Error(), true, map[string]any{"database": connErr.Database})
	case errors.As(err, &generateErr):
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), true, map[string]any{"attempt": generateErr.Attempt})
	case errors.As(err, &exhaustedErr):
		writeError(ctx, w, http.StatusUnprocessableEntity, "EXHAUSTED", err.Error(), false, map[string]any{
			"last_sql":   exhaustedErr.LastSQL,
			"last_error": exhaustedErr.LastError,
			"attempts":   exhaustedErr.Attempts,
		})
	case errors.Is(err, agent.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusServiceUnavailable, "CANCELLED", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), false, nil)
	}
}
