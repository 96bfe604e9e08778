package idxdef_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sqldef/idxdef"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/database/mysql"
	"github.com/sqldef/idxdef/database/postgres"
	"github.com/sqldef/idxdef/schema"
	"github.com/sqldef/idxdef/testutil"
	"github.com/sqldef/idxdef/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCases(t *testing.T) {
	tests, err := testutil.ReadTests("testdata/*.yml")
	if err != nil {
		t.Fatal(err)
	}
	require.NotEmpty(t, tests)

	for name, test := range util.CanonicalMapIter(tests) {
		t.Run(name, func(t *testing.T) {
			testutil.RunPlanTest(t, test)
		})
	}
}

const desiredManifest = `indexes:
  - table: orders
    name: idx_order_id
    columns: [order_id]
  - table: orders
    name: idx_user_created
    columns: [user_id, created_at DESC]
`

func writeTempFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunGeneratesScript(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", desiredManifest)

	logger := &database.BufferLogger{}
	err := idxdef.Run(context.Background(), schema.GeneratorModeMysql, nil, database.NewParser(), &idxdef.Options{
		DesiredFiles: []string{desired},
		Check:        true,
		Logger:       logger,
	})
	require.NoError(t, err)
	require.Len(t, logger.Lines, 1)

	script := logger.Lines[0]
	assert.True(t, strings.HasPrefix(script, "DELIMITER $$\n"))
	assert.Contains(t, script, "CALL Dynamic_Create_Index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A');\n")
	assert.Contains(t, script, "CALL Dynamic_Create_Index('orders', 'idx_user_created', 'user_id, created_at DESC', 'INDEX', 'USER_ID,CREATED_AT', 'AD');\n")
}

func TestRunWritesOutputFile(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", desiredManifest)
	output := filepath.Join(t.TempDir(), "R__indexes.sql")

	err := idxdef.Run(context.Background(), schema.GeneratorModePostgres, nil, database.NewParser(), &idxdef.Options{
		DesiredFiles: []string{desired},
		OutputFile:   output,
		Logger:       database.NullLogger{},
	})
	require.NoError(t, err)

	buf, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "SELECT dynamic_create_index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A');\n")
}

func TestRunConfigurationError(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", "indexes:\n  - table: orders\n    name: bad-name\n    columns: [order_id]\n")

	logger := &database.BufferLogger{}
	err := idxdef.Run(context.Background(), schema.GeneratorModeMysql, nil, database.NewParser(), &idxdef.Options{
		DesiredFiles: []string{desired},
		Logger:       logger,
	})
	assert.ErrorIs(t, err, schema.ErrConfiguration)
	assert.Empty(t, logger.Lines)
}

type manifestDatabase struct {
	indexes []database.Index
}

func (d manifestDatabase) ExportIndexes(ctx context.Context, tables []string) ([]database.Index, error) {
	return database.FilterIndexes(d.indexes, tables), nil
}
func (d manifestDatabase) DB() *sql.DB                { return nil }
func (d manifestDatabase) GetConfig() database.Config { return database.Config{} }
func (d manifestDatabase) Close() error               { return nil }

func TestRunPlan(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", desiredManifest)
	db := manifestDatabase{indexes: []database.Index{
		{Table: "orders", Name: "legacy", Columns: []database.IndexColumn{{Name: "order_id"}}},
	}}

	logger := &database.BufferLogger{}
	err := idxdef.Run(context.Background(), schema.GeneratorModeMysql, db, database.NewParser(), &idxdef.Options{
		DesiredFiles: []string{desired},
		CurrentFile:  "current.yml",
		Logger:       logger,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[SKIPPED]: matching index idx_order_id (ORDER_ID) already exists.",
		"[CREATED]: index idx_user_created (USER_ID,CREATED_AT) created successfully.",
	}, logger.Lines)
}

func TestRunDryRun(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", desiredManifest)

	logger := &database.BufferLogger{}
	err := idxdef.Run(context.Background(), schema.GeneratorModePostgres, manifestDatabase{}, database.NewParser(), &idxdef.Options{
		DesiredFiles: []string{desired},
		DryRun:       true,
		Logger:       logger,
	})
	require.NoError(t, err)
	require.Len(t, logger.Lines, 3)
	assert.Equal(t, "-- dry run --", logger.Lines[0])
	assert.Equal(t, "[DRY-RUN]: SELECT dynamic_create_index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A')", logger.Lines[1])
}

func TestRunExport(t *testing.T) {
	db := manifestDatabase{indexes: []database.Index{
		{Table: "orders", Name: "idx_user_created", Columns: []database.IndexColumn{{Name: "user_id"}, {Name: "created_at", Descending: true}}},
	}}

	logger := &database.BufferLogger{}
	err := idxdef.Run(context.Background(), schema.GeneratorModeMysql, db, database.NewParser(), &idxdef.Options{
		Export: true,
		Logger: logger,
	})
	require.NoError(t, err)
	require.Len(t, logger.Lines, 1)

	manifest, err := idxdef.ParseManifest([]byte(logger.Lines[0]))
	require.NoError(t, err)
	specs, err := manifest.IndexSpecs()
	require.NoError(t, err)
	assert.Equal(t, "USER_ID,CREATED_AT", schema.Normalize(specs[0].Columns))
	assert.Equal(t, "AD", schema.CollationSignature(specs[0].Columns))

	logger = &database.BufferLogger{}
	err = idxdef.Run(context.Background(), schema.GeneratorModeMysql, manifestDatabase{}, database.NewParser(), &idxdef.Options{
		Export: true,
		Logger: logger,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"-- No index exists --"}, logger.Lines)
}

func TestIsFlywayScriptName(t *testing.T) {
	tests := map[string]bool{
		"R__indexes.sql":                true,
		"migrations/R__order_index.sql": true,
		"V0.3.181__alter_index.sql":     true,
		"U1.0.0__undo.sql":              true,
		"V1__init.sql":                  false,
		"indexes.sql":                   false,
		"R_indexes.sql":                 false,
		"R__indexes.txt":                false,
	}
	for name, expected := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, expected, idxdef.IsFlywayScriptName(name))
		})
	}
}

func TestRunCheck(t *testing.T) {
	desired := writeTempFile(t, "desired.yml", desiredManifest)
	tests := []struct {
		name   string
		mode   schema.GeneratorMode
		parser database.Parser
		config database.GeneratorConfig
	}{
		{name: "mysql", mode: schema.GeneratorModeMysql, parser: mysql.NewParser()},
		{name: "postgresql structure", mode: schema.GeneratorModePostgres, parser: postgres.NewParser()},
		{name: "postgresql name", mode: schema.GeneratorModePostgres, parser: postgres.NewParser(), config: database.GeneratorConfig{PostgresExistenceCheck: database.ExistenceCheckName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &database.BufferLogger{}
			err := idxdef.Run(context.Background(), tt.mode, nil, tt.parser, &idxdef.Options{
				DesiredFiles: []string{desired},
				Check:        true,
				Config:       tt.config,
				Logger:       logger,
			})
			require.NoError(t, err)
			assert.Len(t, logger.Lines, 1)
		})
	}
}
