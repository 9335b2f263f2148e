// Package nl2sql turns natural-language questions into SQL through a
// text-generation backend.
package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/queryai/queryai/internal/database"
)

type GenerateRequest struct {
	Question string
	Dialect  database.Dialect
	// Schema is the rendered schema summary.
	Schema string
}

type RefineRequest struct {
	GenerateRequest
	PriorSQL   string
	PriorError string
}

type AnswerRequest struct {
	Question   string
	SQL        string
	ResultText string
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Refine(ctx context.Context, req RefineRequest) (string, error)
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}

type Prompt struct {
	System string
	User   string
}

// Completer sends one prompt to a backend and returns its raw text reply.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Provider() string
	Model() string
}

// PromptGenerator implements Generator on top of any Completer.
type PromptGenerator struct {
	completer Completer
}

func NewPromptGenerator(completer Completer) *PromptGenerator {
	return &PromptGenerator{completer: completer}
}

func (g *PromptGenerator) Provider() string { return g.completer.Provider() }

func (g *PromptGenerator) Model() string { return g.completer.Model() }

func (g *PromptGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return g.completeSQL(ctx, generatePrompt(req))
}

func (g *PromptGenerator) Refine(ctx context.Context, req RefineRequest) (string, error) {
	return g.completeSQL(ctx, refinePrompt(req))
}

func (g *PromptGenerator) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	raw, err := g.completer.Complete(ctx, answerPrompt(req))
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

func (g *PromptGenerator) completeSQL(ctx context.Context, prompt Prompt) (string, error) {
	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	sql, err := ParseSQL(raw)
	if err != nil {
		return "", fmt.Errorf("parse %s reply: %w", g.completer.Provider(), err)
	}
	return sql, nil
}
