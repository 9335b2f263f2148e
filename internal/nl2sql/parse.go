package nl2sql

import (
	"errors"
	"regexp"
	"strings"

	"github.com/queryai/queryai/internal/guard"
)

var (
	ErrEmptyResponse = errors.New("model returned an empty response")
	ErrNoStatement   = errors.New("no SQL statement found in model response")
)

var (
	fenceTagExpr  = regexp.MustCompile(`^[A-Za-z0-9_+-]*$`)
	firstWordExpr = regexp.MustCompile(`^[A-Za-z_]+`)
)

// clauseWords may start a line that continues a statement after a blank line.
var clauseWords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {},
	"INNER": {}, "OUTER": {}, "FULL": {}, "CROSS": {}, "NATURAL": {}, "ON": {},
	"USING": {}, "AND": {}, "OR": {}, "NOT": {}, "GROUP": {}, "ORDER": {},
	"HAVING": {}, "LIMIT": {}, "OFFSET": {}, "FETCH": {}, "UNION": {},
	"EXCEPT": {}, "INTERSECT": {}, "WINDOW": {}, "QUALIFY": {}, "WITH": {},
	"AS": {}, "CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {},
	"VALUES": {}, "DISTINCT": {}, "ALL": {}, "BY": {}, "ASC": {}, "DESC": {},
}

// ParseSQL extracts a single statement from a free-text model reply:
//
//  1. an empty reply is ErrEmptyResponse;
//  2. if a ``` fence is present only its body is considered (a language tag
//     on the opening fence is dropped, a missing closing fence is tolerated);
//  3. lines before the first one that starts with a SQL verb are dropped;
//  4. the statement ends at the first ";" outside quotes and comments, and
//     the ";" is kept;
//  5. without a ";" it ends at the first blank line outside quotes and
//     comments that is followed by prose, i.e. a line that starts neither
//     with a SQL clause keyword nor with punctuation;
//  6. if nothing statement-like remains the result is ErrNoStatement.
//
// Mutating verbs are extracted like any other; rejecting them is the guard's job.
func ParseSQL(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyResponse
	}
	if body, ok := fencedBody(text); ok {
		text = body
	}
	text = dropLeadingProse(text)
	statement := strings.TrimSpace(cutFirstStatement(text))
	if statement == "" || statement == ";" {
		return "", ErrNoStatement
	}
	return statement, nil
}

func fencedBody(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		if fenceTagExpr.MatchString(strings.TrimSpace(rest[:newline])) {
			rest = rest[newline+1:]
		}
	} else if len(rest) > 4 && strings.EqualFold(rest[:4], "sql ") {
		rest = rest[4:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

func dropLeadingProse(text string) string {
	verbs := map[string]struct{}{}
	for _, verb := range guard.StatementVerbs() {
		verbs[verb] = struct{}{}
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		word := strings.ToUpper(firstWordExpr.FindString(strings.TrimSpace(line)))
		if _, ok := verbs[word]; ok {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return ""
}

// cutFirstStatement returns text up to and including the first ";" that is
// not inside a quoted string, quoted identifier or comment. Without one it
// stops before a blank line that introduces prose.
func cutFirstStatement(text string) string {
	var quote byte
	lineComment, blockComment := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
				if proseAfterBlankLine(text[i+1:]) {
					return text[:i]
				}
			}
		case blockComment:
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				blockComment = false
				i++
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			lineComment = true
			i++
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			blockComment = true
			i++
		case c == ';':
			return text[:i+1]
		case c == '\n' && proseAfterBlankLine(text[i+1:]):
			return text[:i]
		}
	}
	return text
}

// proseAfterBlankLine reports whether rest opens with a blank line and the
// next non-blank line reads as prose rather than more SQL.
func proseAfterBlankLine(rest string) bool {
	line, after, found := strings.Cut(rest, "\n")
	if !found || strings.TrimSpace(line) != "" {
		return false
	}
	word := firstWordExpr.FindString(strings.TrimSpace(after))
	if word == "" {
		return false
	}
	_, continues := clauseWords[strings.ToUpper(word)]
	return !continues
}
