package database

import "strings"

// Dialect is the SQL variant spoken by the target database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectDuckDB   Dialect = "duckdb"
	DialectGeneric  Dialect = "generic"
)

func ParseDialect(raw string) Dialect {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	case "mysql", "mariadb":
		return DialectMySQL
	case "duckdb":
		return DialectDuckDB
	default:
		return DialectGeneric
	}
}

// DisplayName is the name used in generation prompts.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectSQLite:
		return "SQLite"
	case DialectPostgres:
		return "PostgreSQL"
	case DialectMySQL:
		return "MySQL"
	case DialectDuckDB:
		return "DuckDB"
	default:
		return "ANSI SQL"
	}
}

// SupportsReadOnlyTx reports whether the driver honours sql.TxOptions.ReadOnly.
// SQLite and DuckDB are opened in read-only mode instead.
func (d Dialect) SupportsReadOnlyTx() bool {
	switch d {
	case DialectPostgres, DialectMySQL:
		return true
	default:
		return false
	}
}

// SessionGuards are statements run at the start of every execution
// transaction to refuse writes at the engine level.
func (d Dialect) SessionGuards() []string {
	switch d {
	case DialectSQLite:
		return []string{"PRAGMA query_only = ON"}
	default:
		return nil
	}
}
