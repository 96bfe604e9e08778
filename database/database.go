// This package has the database layer. Never deal with script construction.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
	SslMode  string
	SslCa    string

	// Only MySQL
	MySQLEnableCleartextPlugin bool

	DumpConcurrency int
}

// Existence checks emitted into the PostgreSQL routine.
const (
	ExistenceCheckStructure = "structure"
	ExistenceCheckName      = "name"
)

type GeneratorConfig struct {
	TargetTables           []string
	MaxColumns             int
	RoutineName            string
	PostgresExistenceCheck string
	DumpConcurrency        int
}

// Abstraction layer for multiple kinds of databases
type Database interface {
	ExportIndexes(ctx context.Context, tables []string) ([]Index, error)
	DB() *sql.DB
	GetConfig() Config
	Close() error
}

// RunScript executes statements in order. Routine definition and cleanup
// failures abort the run. Invocations are independent of each other: a failing
// invocation is reported and the next one still runs.
func RunScript(ctx context.Context, d Database, statements []string, logger Logger) error {
	db := d.DB()
	if db == nil {
		return fmt.Errorf("database %T cannot execute statements", d)
	}

	var invocationErrs []error
	for _, stmt := range statements {
		if !IsInvocation(stmt) {
			slog.Debug("Executing statement", "statement", firstLine(stmt))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute '%s': %w", firstLine(stmt), err)
			}
			continue
		}

		message, err := queryStatus(ctx, db, stmt)
		if err != nil {
			logger.Printf("-- Failed: %s\n", stmt)
			invocationErrs = append(invocationErrs, fmt.Errorf("%s: %w", stmt, err))
			continue
		}
		logger.Println(message)
	}
	return errors.Join(invocationErrs...)
}

func queryStatus(ctx context.Context, db *sql.DB, stmt string) (string, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var message string
	for rows.Next() {
		if err := rows.Scan(&message); err != nil {
			return "", err
		}
	}
	// MySQL returns an extra, empty result for CALL.
	for rows.NextResultSet() {
	}
	return message, rows.Err()
}

// IsInvocation reports whether stmt calls the generated routine (as opposed to
// defining or dropping it).
func IsInvocation(stmt string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(upper, "CALL ") || strings.HasPrefix(upper, "SELECT ")
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i] + " ..."
	}
	return stmt
}

func ParseGeneratorConfig(configFile string) GeneratorConfig {
	if configFile == "" {
		return GeneratorConfig{}
	}

	buf, err := os.ReadFile(configFile)
	if err != nil {
		log.Fatal(err)
	}
	config, err := parseGeneratorConfig(buf)
	if err != nil {
		log.Fatalf("Failed to parse '%s': %s", configFile, err)
	}
	return config
}

func ParseGeneratorConfigString(yamlString string) GeneratorConfig {
	config, err := parseGeneratorConfig([]byte(yamlString))
	if err != nil {
		log.Fatalf("Failed to parse --config-inline: %s", err)
	}
	return config
}

func parseGeneratorConfig(buf []byte) (GeneratorConfig, error) {
	var config struct {
		TargetTables           string `yaml:"target_tables"`
		MaxColumns             int    `yaml:"max_columns"`
		RoutineName            string `yaml:"routine_name"`
		PostgresExistenceCheck string `yaml:"postgres_existence_check"`
		DumpConcurrency        int    `yaml:"dump_concurrency"`
	}
	if err := yaml.UnmarshalStrict(buf, &config); err != nil {
		return GeneratorConfig{}, err
	}

	var targetTables []string
	if config.TargetTables != "" {
		targetTables = strings.Split(strings.Trim(config.TargetTables, "\n"), "\n")
	}

	return GeneratorConfig{
		TargetTables:           targetTables,
		MaxColumns:             config.MaxColumns,
		RoutineName:            config.RoutineName,
		PostgresExistenceCheck: config.PostgresExistenceCheck,
		DumpConcurrency:        config.DumpConcurrency,
	}, nil
}

// MergeGeneratorConfigs merges configs in order. A later config overrides the
// fields it sets.
func MergeGeneratorConfigs(configs []GeneratorConfig) GeneratorConfig {
	var merged GeneratorConfig
	for _, config := range configs {
		if config.TargetTables != nil {
			merged.TargetTables = config.TargetTables
		}
		if config.MaxColumns != 0 {
			merged.MaxColumns = config.MaxColumns
		}
		if config.RoutineName != "" {
			merged.RoutineName = config.RoutineName
		}
		if config.PostgresExistenceCheck != "" {
			merged.PostgresExistenceCheck = config.PostgresExistenceCheck
		}
		if config.DumpConcurrency != 0 {
			merged.DumpConcurrency = config.DumpConcurrency
		}
	}
	return merged
}
