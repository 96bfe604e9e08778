package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sqldef/idxdef/database"
)

type MysqlDatabase struct {
	config database.Config
	db     *sqlx.DB
}

func NewDatabase(config database.Config) (database.Database, error) {
	if config.SslMode == "custom" {
		err := registerTLSConfig(config.SslCa)
		if err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("mysql", mysqlBuildDSN(config))
	if err != nil {
		return nil, err
	}

	return &MysqlDatabase{
		db:     db,
		config: config,
	}, nil
}

// Rows of information_schema.STATISTICS, one per (index, key part). Prefix and
// functional key parts are flagged as expressions: they never equal a plain column.
const indexRowsQuery = `
	SELECT
		s.TABLE_NAME AS table_name,
		s.INDEX_NAME AS index_name,
		s.NON_UNIQUE = 0 AS is_unique,
		s.INDEX_NAME = 'PRIMARY' AS is_primary,
		FALSE AS is_partial,
		s.SEQ_IN_INDEX AS seq,
		COALESCE(s.COLUMN_NAME, '') AS column_name,
		COALESCE(s.COLLATION, 'A') = 'D' AS is_descending,
		(s.COLUMN_NAME IS NULL OR s.SUB_PART IS NOT NULL) AS is_expression
	FROM information_schema.STATISTICS s
	WHERE s.TABLE_SCHEMA = DATABASE()
	AND s.TABLE_NAME = ?
	ORDER BY s.INDEX_NAME, s.SEQ_IN_INDEX
`

func (d *MysqlDatabase) ExportIndexes(ctx context.Context, tables []string) ([]database.Index, error) {
	d.logServerVersion(ctx)

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
			if err := d.db.SelectContext(ctx, &rows, indexRowsQuery, table); err != nil {
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

func (d *MysqlDatabase) tableNames(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SHOW FULL TABLES
		WHERE Table_Type != 'VIEW'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var table string
		var tableType string
		if err := rows.Scan(&table, &tableType); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

// Descending key parts are only honored since MySQL 8.0; older servers report
// every key part as ascending.
func (d *MysqlDatabase) logServerVersion(ctx context.Context) {
	var version string
	if err := d.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		slog.Debug("Failed to get MySQL version", "error", err)
		return
	}
	slog.Debug("MySQL server version", "version", version)
}

func (d *MysqlDatabase) DB() *sql.DB {
	return d.db.DB
}

func (d *MysqlDatabase) GetConfig() database.Config {
	return d.config
}

func (d *MysqlDatabase) Close() error {
	return d.db.Close()
}

func mysqlBuildDSN(config database.Config) string {
	c := driver.NewConfig()
	c.User = config.User
	c.Passwd = config.Password
	c.DBName = config.DbName
	c.AllowCleartextPasswords = config.MySQLEnableCleartextPlugin
	c.TLSConfig = config.SslMode
	if config.Socket == "" {
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		c.Net = "unix"
		c.Addr = config.Socket
	}
	return c.FormatDSN()
}

func registerTLSConfig(pemPath string) error {
	rootCertPool := x509.NewCertPool()
	pem, err := os.ReadFile(pemPath)
	if err != nil {
		return err
	}

	if ok := rootCertPool.AppendCertsFromPEM(pem); !ok {
		return fmt.Errorf("failed to append PEM")
	}

	return driver.RegisterTLSConfig("custom", &tls.Config{
		RootCAs: rootCertPool,
	})
}
