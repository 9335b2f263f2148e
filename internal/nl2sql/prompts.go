package nl2sql

import (
	"fmt"
	"strings"

	"github.com/queryai/queryai/internal/database"
)

func sqlSystemPrompt(dialect database.Dialect) string {
	name := dialect.DisplayName()
	return fmt.Sprintf(`You are an expert data analyst and SQL engineer.
You are connected to a READ-ONLY %s database.
Rules:
- Write exactly one valid %s SQL statement.
- Use only the tables and columns listed in the schema.
- Never write INSERT, UPDATE, DELETE, DROP, ALTER or TRUNCATE, or anything else that changes data or schema.
- Respond with the SQL statement only. No explanation, no markdown.`, name, name)
}

func generatePrompt(req GenerateRequest) Prompt {
	user := fmt.Sprintf("Database schema:\n%s\n\nQuestion:\n%s",
		strings.TrimSpace(req.Schema),
		strings.TrimSpace(req.Question),
	)
	return Prompt{System: sqlSystemPrompt(req.Dialect), User: user}
}

func refinePrompt(req RefineRequest) Prompt {
	user := fmt.Sprintf(
		"Database schema:\n%s\n\nQuestion:\n%s\n\nYou previously generated this SQL:\n%s\n\nIt was rejected with this error:\n%s\n\nReturn a corrected statement that fixes the error and still answers the question. Respond with the SQL statement only.",
		strings.TrimSpace(req.Schema),
		strings.TrimSpace(req.Question),
		strings.TrimSpace(req.PriorSQL),
		strings.TrimSpace(req.PriorError),
	)
	return Prompt{System: sqlSystemPrompt(req.Dialect), User: user}
}

func answerPrompt(req AnswerRequest) Prompt {
	system := "You are a helpful data analyst. Answer the user's question in clear, concise natural language using only the query results provided. Do not include SQL. If the result is empty, say that no matching data was found."
	user := fmt.Sprintf("Question:\n%s\n\nSQL executed:\n%s\n\nResults:\n%s",
		strings.TrimSpace(req.Question),
		strings.TrimSpace(req.SQL),
		strings.TrimSpace(req.ResultText),
	)
	return Prompt{System: system, User: user}
}
