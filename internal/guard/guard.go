// Package guard classifies SQL text as read-only or mutating.
//
// The check is a keyword heuristic, not a parser. It rejects anything that
// does not start with a read verb, mentions a mutating verb as a whole word
// anywhere (comments and string literals included), or chains a second
// statement after a semicolon. Obfuscated input can still get past it, which
// is why execution also runs under a read-only session.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

var allowedVerbs = []string{"SELECT", "WITH", "EXPLAIN", "SHOW", "PRAGMA", "DESCRIBE"}

var deniedVerbs = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"REPLACE", "GRANT", "REVOKE", "ATTACH", "DETACH", "EXEC", "CALL",
}

var (
	deniedPattern   = regexp.MustCompile(`(?i)\b(` + strings.Join(deniedVerbs, "|") + `)\b`)
	chainedPattern  = regexp.MustCompile(`;\s*\S`)
	leadingWordExpr = regexp.MustCompile(`^[A-Za-z_]+`)
)

// Violation explains why a statement was refused.
type Violation struct {
	SQL    string
	Reason string
}

func (v *Violation) Error() string {
	return "statement is not read-only: " + v.Reason
}

// IsReadOnly reports whether sql passes Check.
func IsReadOnly(sql string) bool {
	return Check(sql) == nil
}

// Check returns nil for read-only SQL and a *Violation otherwise.
func Check(sql string) error {
	body := StripLeadingComments(sql)
	if body == "" {
		return &Violation{SQL: sql, Reason: "empty statement"}
	}

	verb := strings.ToUpper(leadingWordExpr.FindString(body))
	if !isAllowedVerb(verb) {
		if verb == "" {
			verb = firstToken(body)
		}
		return &Violation{SQL: sql, Reason: fmt.Sprintf("statement starts with %q; only %s are allowed", verb, strings.Join(allowedVerbs, ", "))}
	}
	if match := deniedPattern.FindString(sql); match != "" {
		return &Violation{SQL: sql, Reason: fmt.Sprintf("statement contains forbidden keyword %s", strings.ToUpper(match))}
	}
	if chainedPattern.MatchString(sql) {
		return &Violation{SQL: sql, Reason: "multiple statements are not allowed"}
	}
	return nil
}

// StripLeadingComments removes leading whitespace, "--" line comments and
// "/* */" block comments. An unterminated block comment leaves nothing.
func StripLeadingComments(sql string) string {
	rest := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(rest, "--"):
			newline := strings.IndexByte(rest, '\n')
			if newline < 0 {
				return ""
			}
			rest = strings.TrimSpace(rest[newline+1:])
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return ""
			}
			rest = strings.TrimSpace(rest[end+4:])
		default:
			return rest
		}
	}
}

func isAllowedVerb(verb string) bool {
	for _, allowed := range allowedVerbs {
		if verb == allowed {
			return true
		}
	}
	return false
}

func firstToken(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// StatementVerbs lists every leading keyword the guard knows about, read and
// mutating alike.
func StatementVerbs() []string {
	verbs := make([]string, 0, len(allowedVerbs)+len(deniedVerbs))
	verbs = append(verbs, allowedVerbs...)
	return append(verbs, deniedVerbs...)
}
