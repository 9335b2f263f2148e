package schema

import (
	"strings"

	"github.com/queryai/queryai/internal/database"
)

type catalogQueries struct {
	// tables returns (schema, table) pairs.
	tables string
	// columns returns (name, type) pairs in ordinal order.
	columns            string
	columnsByTableOnly bool
	defaultSchema      string
}

const (
	sqliteTables = `SELECT 'main', name FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	sqliteColumns = `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`

	postgresTables = `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name`
	postgresColumns = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	mysqlTables = `SELECT '', table_name FROM information_schema.tables
WHERE table_schema = DATABASE()
ORDER BY table_name`
	mysqlColumns = `SELECT column_name, column_type FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`

	duckdbTables = `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema = 'main'
ORDER BY table_name`
	duckdbColumns = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`
)

func catalogFor(dialect database.Dialect) catalogQueries {
	switch dialect {
	case database.DialectSQLite:
		return catalogQueries{tables: sqliteTables, columns: sqliteColumns, columnsByTableOnly: true, defaultSchema: "main"}
	case database.DialectPostgres:
		return catalogQueries{tables: postgresTables, columns: postgresColumns, defaultSchema: "public"}
	case database.DialectMySQL:
		// Every table lives in DATABASE(), so the schema is never shown.
		return catalogQueries{tables: mysqlTables, columns: mysqlColumns, columnsByTableOnly: true}
	case database.DialectDuckDB:
		return catalogQueries{tables: duckdbTables, columns: duckdbColumns, defaultSchema: "main"}
	default:
		return catalogQueries{tables: postgresTables, columns: duckdbColumns, defaultSchema: "public"}
	}
}

func quoteQualified(dialect database.Dialect, table Table) string {
	if table.Schema == "" {
		return quoteIdent(dialect, table.Name)
	}
	return quoteIdent(dialect, table.Schema) + "." + quoteIdent(dialect, table.Name)
}

func quoteIdent(dialect database.Dialect, value string) string {
	if dialect == database.DialectMySQL {
		return "`" + strings.ReplaceAll(value, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
