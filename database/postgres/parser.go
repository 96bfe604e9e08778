package postgres

import (
	"fmt"
	"log/slog"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v2"
	"github.com/sqldef/idxdef/database"
)

type PostgresParser struct {
	parser database.GenericParser
}

var _ database.Parser = PostgresParser{}

func NewParser() PostgresParser {
	return PostgresParser{
		parser: database.NewParser(),
	}
}

func (p PostgresParser) Split(sql string) ([]string, error) {
	// Attempt to split sql with PostgreSQL's parser first. If it works, use the result.
	stmts, err := p.splitStmts(sql)
	if err == nil {
		return stmts, nil
	}

	// Otherwise, use the generic parser.
	slog.Debug("pg_query failed, falling back to the generic parser", "error", err)
	return p.parser.Split(sql)
}

func (p PostgresParser) splitStmts(sql string) ([]string, error) {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, err
	}

	var stmts []string
	for _, rawStmt := range result.Stmts {
		stmt := strings.TrimSpace(stmtText(sql, rawStmt))
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// Validate parses sql and compiles every PL/pgSQL function body in it, which
// catches errors that the SQL grammar alone accepts.
func (p PostgresParser) Validate(sql string) error {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return err
	}

	for _, rawStmt := range result.Stmts {
		fn, ok := rawStmt.Stmt.Node.(*pgquery.Node_CreateFunctionStmt)
		if !ok || !isPlpgsql(fn.CreateFunctionStmt) {
			continue
		}
		if _, err := pgquery.ParsePlPgSqlToJSON(stmtText(sql, rawStmt)); err != nil {
			return fmt.Errorf("invalid PL/pgSQL body: %w", err)
		}
	}
	return nil
}

// A zero StmtLen means the statement runs until the end of the input.
func stmtText(sql string, rawStmt *pgquery.RawStmt) string {
	start := int(rawStmt.StmtLocation)
	end := len(sql)
	if rawStmt.StmtLen > 0 {
		end = start + int(rawStmt.StmtLen)
	}
	return sql[start:end]
}

func isPlpgsql(stmt *pgquery.CreateFunctionStmt) bool {
	for _, option := range stmt.Options {
		def, ok := option.Node.(*pgquery.Node_DefElem)
		if !ok || def.DefElem.Defname != "language" {
			continue
		}
		if s, ok := def.DefElem.Arg.Node.(*pgquery.Node_String_); ok {
			return strings.EqualFold(s.String_.Str, "plpgsql")
		}
	}
	return false
}
