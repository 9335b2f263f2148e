package database

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const memoryPath = ":memory:"

// Target is a resolved connection: which driver to load, the DSN to hand it
// and the dialect used for prompting and introspection.
type Target struct {
	URL        string
	Dialect    Dialect
	DriverName string
	DSN        string
	// FilePath is set for file-backed engines and checked before opening so a
	// missing file is reported instead of silently created.
	FilePath string
}

// Normalize turns a bare file path into a sqlite URL. Anything that already
// looks like a URL is returned unchanged.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(strings.ToLower(raw), "sqlite:") {
		return raw
	}
	return "sqlite:///" + raw
}

func ParseURL(raw string) (Target, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return Target{}, fmt.Errorf("database url is required")
	}

	scheme, rest, ok := strings.Cut(normalized, ":")
	if !ok {
		return Target{}, fmt.Errorf("database url %q has no scheme", normalized)
	}
	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")

	switch base {
	case "sqlite", "sqlite3":
		return sqliteTarget(normalized, filePathFromRest(rest))
	case "duckdb":
		return duckdbTarget(normalized, filePathFromRest(rest))
	case "postgres", "postgresql":
		return postgresTarget(normalized, rest)
	case "mysql", "mariadb":
		return mysqlTarget(normalized, rest)
	default:
		return Target{}, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// Redacted returns the URL with any password masked.
func (t Target) Redacted() string {
	parsed, err := url.Parse(t.URL)
	if err != nil || parsed.User == nil {
		return t.URL
	}
	return parsed.Redacted()
}

// filePathFromRest follows the SQLAlchemy convention: three slashes precede a
// relative path, four an absolute one.
func filePathFromRest(rest string) string {
	if strings.HasPrefix(rest, "//") {
		rest = strings.TrimPrefix(rest, "//")
		rest = strings.TrimPrefix(rest, "/")
	}
	if path, _, found := strings.Cut(rest, "?"); found {
		rest = path
	}
	return strings.TrimSpace(rest)
}

func sqliteTarget(normalized, path string) (Target, error) {
	if path == "" {
		return Target{}, fmt.Errorf("sqlite url %q has no file path", normalized)
	}
	target := Target{URL: normalized, Dialect: DialectSQLite, DriverName: "sqlite"}
	if path == memoryPath {
		target.DSN = memoryPath
		return target, nil
	}
	target.FilePath = path
	target.DSN = "file:" + escapeFilePath(path) + "?mode=ro"
	return target, nil
}

func duckdbTarget(normalized, path string) (Target, error) {
	target := Target{URL: normalized, Dialect: DialectDuckDB, DriverName: "duckdb"}
	if path == "" || path == memoryPath {
		return target, nil
	}
	target.FilePath = path
	target.DSN = path + "?access_mode=READ_ONLY"
	return target, nil
}

func postgresTarget(normalized, rest string) (Target, error) {
	parsed, err := url.Parse("postgres:" + rest)
	if err != nil {
		return Target{}, fmt.Errorf("parse postgres url: %w", err)
	}
	if parsed.Host == "" {
		return Target{}, fmt.Errorf("postgres url %q has no host", normalized)
	}
	return Target{
		URL:        normalized,
		Dialect:    DialectPostgres,
		DriverName: "pgx",
		DSN:        parsed.String(),
	}, nil
}

func mysqlTarget(normalized, rest string) (Target, error) {
	parsed, err := url.Parse("mysql:" + rest)
	if err != nil {
		return Target{}, fmt.Errorf("parse mysql url: %w", err)
	}
	if parsed.Host == "" {
		return Target{}, fmt.Errorf("mysql url %q has no host", normalized)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = parsed.Host
	if parsed.Port() == "" {
		cfg.Addr = net.JoinHostPort(parsed.Hostname(), "3306")
	}
	if parsed.User != nil {
		cfg.User = parsed.User.Username()
		cfg.Passwd, _ = parsed.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(parsed.Path, "/")
	cfg.ParseTime = true
	for key, values := range parsed.Query() {
		if len(values) == 0 {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[key] = values[0]
	}

	return Target{
		URL:        normalized,
		Dialect:    DialectMySQL,
		DriverName: "mysql",
		DSN:        cfg.FormatDSN(),
	}, nil
}

func escapeFilePath(path string) string {
	replacer := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")
	return replacer.Replace(path)
}
