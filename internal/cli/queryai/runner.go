// Package queryai implements the queryai command: ask one question of one
// database and print the statement that answered it along with its rows.
package queryai

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/queryai/queryai/internal/agent"
	"github.com/queryai/queryai/internal/config"
	"github.com/queryai/queryai/internal/export"
	"github.com/queryai/queryai/internal/nl2sql"
	"github.com/queryai/queryai/internal/render"
)

type GeneratorFactory func(ctx context.Context, cfg config.AIConfig) (nl2sql.Generator, error)

type Options struct {
	Config config.Config
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// NewGenerator builds the text-generation backend. Defaults to
	// nl2sql.NewFromConfig.
	NewGenerator GeneratorFactory
	// Exporter handles -export. Defaults to export.NewExporter(Config.Export).
	Exporter *export.Exporter
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	cfg := defaults.Config

	fs := flag.NewFlagSet("queryai", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { writeUsage(fs, stderr) }

	dbURL := fs.String("db", cfg.Database.URI, "database file path or URL (sqlite, postgres, mysql, duckdb)")
	question := fs.String("question", "", "natural-language question (prompted for on stdin when omitted)")
	formatFlag := fs.String("format", string(render.FormatTable), "output format: table, csv or json")
	sampleRows := fs.Int("sample-rows", cfg.Database.SchemaSampleRows, "sample rows per table included in the schema summary")
	answer := fs.Bool("answer", cfg.AI.AnswerEnabled, "also ask for a short prose answer")
	exportDest := fs.String("export", "", "write the result to a file path or s3://bucket/key")
	exportFormatFlag := fs.String("export-format", "", "export format: csv, json or parquet (default from extension)")
	overwrite := fs.Bool("export-overwrite", false, "replace an existing export destination")
	showSchema := fs.Bool("show-schema", false, "print the schema summary before asking")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	format, err := render.ParseFormat(*formatFlag)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	exportFormat, err := export.ParseFormat(*exportFormatFlag)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if *sampleRows < 0 {
		_, _ = fmt.Fprintln(stderr, "-sample-rows must not be negative")
		return 2
	}
	if strings.TrimSpace(*dbURL) == "" {
		_, _ = fmt.Fprintln(stderr, "-db is required (or set DATABASE_URI)")
		return 2
	}

	text := strings.TrimSpace(*question)
	if text == "" && fs.NArg() > 0 {
		text = strings.TrimSpace(strings.Join(fs.Args(), " "))
	}
	if text == "" && defaults.Stdin != nil {
		_, _ = fmt.Fprint(stderr, "Enter your question about the data: ")
		line, err := bufio.NewReader(defaults.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintf(stderr, "\nread question from stdin: %v\n", err)
			return 1
		}
		text = strings.TrimSpace(line)
	}
	if text == "" {
		_, _ = fmt.Fprintln(stderr, "a question is required (-question, arguments or stdin)")
		return 2
	}

	newGenerator := defaults.NewGenerator
	if newGenerator == nil {
		newGenerator = defaultGenerator
	}
	generator, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	cfg.Database.SchemaSampleRows = *sampleRows
	cfg.AI.AnswerEnabled = *answer
	deps := agent.DependenciesFromConfig(cfg, generator, defaults.Logger)

	session, err := agent.OpenSession(ctx, *dbURL, deps)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = session.Close() }()

	if *showSchema {
		_, _ = fmt.Fprintf(stderr, "%s schema:\n%s\n\n", session.Dialect().DisplayName(), session.Schema.Text())
	}

	result, err := session.Ask(ctx, text)
	if err != nil {
		writeFailure(stderr, err)
		return 1
	}

	if err := writeResult(stdout, stderr, format, result); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if strings.TrimSpace(*exportDest) != "" {
		exporter := defaults.Exporter
		if exporter == nil {
			exporter = export.NewExporter(cfg.Export)
		}
		exporter.Overwrite = exporter.Overwrite || *overwrite
		report, err := exporter.Export(ctx, *exportDest, exportFormat, export.Dataset{
			SessionID: result.SessionID,
			Columns:   result.Columns,
			Rows:      result.Rows,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "export failed: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "exported %d rows (%s, %d bytes) to %s\n", report.Rows, report.Format, report.Bytes, report.Location)
	}
	return 0
}

// writeResult prints the statement and rows. Table output is for people and
// carries everything on stdout; csv and json keep stdout machine-readable and
// send the statement and answer to stderr.
func writeResult(stdout, stderr io.Writer, format render.Format, result agent.Result) error {
	meta := stderr
	if format == render.FormatTable {
		meta = stdout
	}
	_, _ = fmt.Fprintf(meta, "SQL (attempt %d of %d):\n%s\n\n", result.AttemptCount(), agent.MaxAttempts, result.SQL)
	if err := render.Write(stdout, format, result.Columns, result.Rows); err != nil {
		return err
	}
	if format == render.FormatTable {
		_, _ = fmt.Fprintf(stdout, "(%d rows)\n", len(result.Rows))
	}
	if result.Answer != "" {
		_, _ = fmt.Fprintf(meta, "\nAnswer: %s\n", result.Answer)
	}
	return nil
}

func writeFailure(w io.Writer, err error) {
	var exhausted *agent.ExhaustedError
	if errors.As(err, &exhausted) {
		_, _ = fmt.Fprintf(w, "error: no working query after %d attempts\n", exhausted.Attempts)
		_, _ = fmt.Fprintf(w, "last error: %s\n", exhausted.LastError)
		if exhausted.LastSQL != "" {
			_, _ = fmt.Fprintf(w, "last sql:\n%s\n", exhausted.LastSQL)
		}
		return
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
}

func defaultGenerator(ctx context.Context, cfg config.AIConfig) (nl2sql.Generator, error) {
	return nl2sql.NewFromConfig(ctx, cfg)
}

func writeUsage(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: queryai [flags] [question]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "examples:")
	_, _ = fmt.Fprintln(w, `  queryai -db data/sample.db -question "How many orders per country?"`)
	_, _ = fmt.Fprintln(w, `  echo "top 5 products by revenue" | queryai -db postgresql://reader@localhost/shop -format csv`)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
