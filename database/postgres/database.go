package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sqldef/idxdef/database"
)

type PostgresDatabase struct {
	config database.Config
	db     *sqlx.DB
}

func NewDatabase(config database.Config) (database.Database, error) {
	db, err := sqlx.Open("postgres", postgresBuildDSN(config))
	if err != nil {
		return nil, err
	}

	return &PostgresDatabase{
		db:     db,
		config: config,
	}, nil
}

// One row per key column of every index on a table of current_schema().
// INCLUDE columns (beyond indnkeyatts) are not part of the key and are left out.
// Expression key parts have attnum 0.
const indexRowsQuery = `
	SELECT
		t.relname AS table_name,
		ic.relname AS index_name,
		i.indisunique AS is_unique,
		i.indisprimary AS is_primary,
		(i.indpred IS NOT NULL) AS is_partial,
		k.ord AS seq,
		COALESCE(a.attname, '') AS column_name,
		(k.opt & 1) = 1 AS is_descending,
		(k.attnum = 0) AS is_expression
	FROM pg_catalog.pg_index i
	JOIN pg_catalog.pg_class t ON t.oid = i.indrelid
	JOIN pg_catalog.pg_class ic ON ic.oid = i.indexrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
	CROSS JOIN LATERAL unnest(i.indkey::int2[], i.indoption::int2[]) WITH ORDINALITY AS k(attnum, opt, ord)
	LEFT JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname = current_schema()
	AND t.relname = $1
	AND k.ord <= i.indnkeyatts
	ORDER BY ic.relname, k.ord
`

func (d *PostgresDatabase) ExportIndexes(ctx context.Context, tables []string) ([]database.Index, error) {
	if len(tables) == 0 {
		var err error
		tables, err = d.tableNames(ctx)
		if err != nil {
			return nil, err
		}
	}

	perTable, err := database.ConcurrentMapFuncWithError(
		ctx,
		tables,
		d.config.DumpConcurrency,
		func(ctx context.Context, table string) ([]database.Index, error) {
			var rows []database.IndexRow
			if err := d.db.SelectContext(ctx, &rows, indexRowsQuery, strings.ToLower(table)); err != nil {
				return nil, fmt.Errorf("failed to read indexes of '%s': %w", table, err)
			}
			return database.GroupIndexRows(rows), nil
		})
	if err != nil {
		return nil, err
	}

	var indexes []database.Index
	for _, tableIndexes := range perTable {
		indexes = append(indexes, tableIndexes...)
	}
	return indexes, nil
}

func (d *PostgresDatabase) tableNames(ctx context.Context) ([]string, error) {
	var tables []string
	err := d.db.SelectContext(ctx, &tables, `
		select relname as table_name from pg_catalog.pg_class c
		inner join pg_catalog.pg_namespace n on c.relnamespace = n.oid
		where n.nspname = current_schema()
		and c.relkind in ('r', 'p')
		and c.relpersistence in ('p', 'u')
		and c.relispartition = false
		and not exists (select * from pg_catalog.pg_depend d where c.oid = d.objid and d.deptype = 'e')
		order by relname asc;
	`)
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func (d *PostgresDatabase) DB() *sql.DB {
	return d.db.DB
}

func (d *PostgresDatabase) GetConfig() database.Config {
	return d.config
}

func (d *PostgresDatabase) Close() error {
	return d.db.Close()
}

func postgresBuildDSN(config database.Config) string {
	user := config.User
	password := config.Password
	database := config.DbName
	host := ""
	var options []string

	if config.Socket == "" {
		host = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		// postgres://user:@%2Fvar%2Frun%2Fpostgresql/dbname would be rejected by
		// the URL parser, so the socket directory goes to the host option.
		options = append(options, fmt.Sprintf("host=%s", config.Socket))
	}

	if config.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", config.SslMode))
	} else if sslmode, ok := os.LookupEnv("PGSSLMODE"); ok {
		options = append(options, fmt.Sprintf("sslmode=%s", sslmode))
	}

	if config.SslCa != "" {
		options = append(options, fmt.Sprintf("sslrootcert=%s", config.SslCa))
	} else if sslrootcert, ok := os.LookupEnv("PGSSLROOTCERT"); ok {
		options = append(options, fmt.Sprintf("sslrootcert=%s", sslrootcert))
	}

	// `QueryEscape` instead of `PathEscape` so that colon can be escaped.
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s", url.QueryEscape(user), url.QueryEscape(password), host, database, strings.Join(options, "&"))
}
