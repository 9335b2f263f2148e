package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/queryai/queryai/internal/database"
)

func TestOpenAIGeneratorGenerate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```sql\\nSELECT * FROM users LIMIT 10;\\n```" + `"}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "test-key", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	sql, err := generator.Generate(context.Background(), GenerateRequest{
		Question: "Show me the first 10 rows from the users table",
		Dialect:  database.DialectSQLite,
		Schema:   "Table users: id (INTEGER), name (TEXT)",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sql != "SELECT * FROM users LIMIT 10;" {
		t.Fatalf("sql = %q", sql)
	}

	if captured["model"] != "test-model" {
		t.Fatalf("model = %#v", captured["model"])
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", captured["messages"])
	}
	system := messages[0].(map[string]any)["content"].(string)
	if !strings.Contains(system, "READ-ONLY SQLite database") {
		t.Fatalf("system prompt = %q", system)
	}
	user := messages[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "Table users: id (INTEGER), name (TEXT)") || !strings.Contains(user, "first 10 rows") {
		t.Fatalf("user prompt = %q", user)
	}
}

func TestOpenAIGeneratorRefineIncludesPriorAttempt(t *testing.T) {
	var userPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		userPrompt = body.Messages[len(body.Messages)-1].Content
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT id FROM users;"}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	_, err = generator.Refine(context.Background(), RefineRequest{
		GenerateRequest: GenerateRequest{Question: "ids", Dialect: database.DialectPostgres, Schema: "Table users: id (INTEGER)"},
		PriorSQL:        "SELECT idd FROM users",
		PriorError:      "column \"idd\" does not exist",
	})
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if !strings.Contains(userPrompt, "SELECT idd FROM users") || !strings.Contains(userPrompt, `column "idd" does not exist`) {
		t.Fatalf("refine prompt = %q", userPrompt)
	}
}

func TestOpenAIGeneratorFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"   "}}]}`, wantErr: ErrEmptyResponse},
		{name: "prose only", status: http.StatusOK, body: `{"choices":[{"message":{"content":"I am not sure."}}]}`, wantErr: ErrNoStatement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
			if err != nil {
				t.Fatalf("NewOpenAIGenerator() error = %v", err)
			}
			_, err = generator.Generate(context.Background(), GenerateRequest{Question: "q", Dialect: database.DialectSQLite})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIGeneratorAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  There are 3 users.  "}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	answer, err := generator.Answer(context.Background(), AnswerRequest{Question: "how many users?", SQL: "SELECT COUNT(*) FROM users", ResultText: "3"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "There are 3 users." {
		t.Fatalf("answer = %q", answer)
	}
}

func TestNewOpenAIClientValidation(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if client.Model() != "gpt-4o-mini" {
		t.Fatalf("Model() = %q", client.Model())
	}
}
