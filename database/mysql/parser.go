package mysql

import (
	"context"
	"log/slog"

	"github.com/k0kubun/pp/v3"
	"github.com/sqldef/idxdef/database"
)

type MysqlParser struct {
	parser database.GenericParser
}

var _ database.Parser = MysqlParser{}

func NewParser() MysqlParser {
	return MysqlParser{
		parser: database.NewParser(),
	}
}

func (p MysqlParser) Split(sql string) ([]string, error) {
	stmts, err := p.parser.Split(sql)
	if err != nil {
		return nil, err
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("Split MySQL script", "statements", pp.Sprint(stmts))
	}
	return stmts, nil
}
