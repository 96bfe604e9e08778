package schema

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sqldef/idxdef/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringConstantSimple(t *testing.T) {
	assert.Equal(t, StringConstant(""), "''")
	assert.Equal(t, StringConstant("hello world"), "'hello world'")
}

func TestStringConstantContainingSingleQuote(t *testing.T) {
	assert.Equal(t, StringConstant("it's the bee's knees"), "'it''s the bee''s knees'")
	assert.Equal(t, StringConstant("'"), "''''")
	assert.Equal(t, StringConstant("''"), "''''''")
	assert.Equal(t, StringConstant("'example'"), "'''example'''")
}

func orderIDSpec() IndexSpec {
	return IndexSpec{
		TableName: "orders",
		IndexName: "idx_order_id",
		Columns:   []ColumnSpec{{Name: "order_id"}},
		Type:      IndexTypeIndex,
	}
}

func TestGenerateScriptSingleIndex(t *testing.T) {
	tests := []struct {
		mode       GeneratorMode
		invocation string
		cleanup    string
	}{
		{
			mode:       GeneratorModeMysql,
			invocation: "CALL Dynamic_Create_Index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A')",
			cleanup:    "DROP PROCEDURE IF EXISTS Dynamic_Create_Index",
		},
		{
			mode:       GeneratorModePostgres,
			invocation: "SELECT dynamic_create_index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A')",
			cleanup:    "DROP FUNCTION IF EXISTS dynamic_create_index(VARCHAR, VARCHAR, TEXT, VARCHAR, TEXT, TEXT)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			script, err := GenerateScript(tt.mode, []IndexSpec{orderIDSpec()}, database.GeneratorConfig{})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.invocation}, script.Invocations)
			assert.Equal(t, tt.cleanup, script.Cleanup)

			stmts := script.Statements()
			assert.Equal(t, tt.invocation, stmts[len(stmts)-2])
			assert.Equal(t, tt.cleanup, stmts[len(stmts)-1])
		})
	}
}

func TestMysqlScriptString(t *testing.T) {
	script, err := GenerateFullScript([]IndexSpec{orderIDSpec()}, "MySQL", database.GeneratorConfig{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "DELIMITER $$\nDROP PROCEDURE IF EXISTS Dynamic_Create_Index$$\nCREATE PROCEDURE Dynamic_Create_Index(\n"))
	assert.Contains(t, script, "END$$\nDELIMITER ;\n")
	assert.Contains(t, script, "DECLARE v_expected_non_unique INT DEFAULT 1;")
	assert.Contains(t, script, "SET v_expected_non_unique = 0;")
	assert.Contains(t, script, "PREPARE idxdef_create_stmt FROM @idxdef_create_sql;")
	assert.True(t, strings.HasSuffix(script, "\nCALL Dynamic_Create_Index('orders', 'idx_order_id', 'order_id', 'INDEX', 'ORDER_ID', 'A');\n\nDROP PROCEDURE IF EXISTS Dynamic_Create_Index;\n"))

	stmts, err := database.NewParser().Split(script)
	require.NoError(t, err)
	assert.Len(t, stmts, 4)
}

func TestPostgresScriptString(t *testing.T) {
	script, err := GenerateFullScript([]IndexSpec{orderIDSpec()}, "postgresql", database.GeneratorConfig{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "CREATE OR REPLACE FUNCTION dynamic_create_index(\n"))
	assert.Contains(t, script, "v_expected_unique BOOLEAN := FALSE;")
	assert.Contains(t, script, "v_expected_unique := TRUE;")
	assert.Contains(t, script, "unnest(i.indkey::int2[], i.indoption::int2[]) WITH ORDINALITY")
	assert.NotContains(t, script, "pg_indexes")
	assert.Contains(t, script, "$$ LANGUAGE plpgsql;\n")
	assert.True(t, strings.HasSuffix(script, "\nDROP FUNCTION IF EXISTS dynamic_create_index(VARCHAR, VARCHAR, TEXT, VARCHAR, TEXT, TEXT);\n"))
}

func TestPostgresNameExistenceCheck(t *testing.T) {
	script, err := GenerateScript(GeneratorModePostgres, []IndexSpec{orderIDSpec()}, database.GeneratorConfig{
		PostgresExistenceCheck: database.ExistenceCheckName,
	})
	require.NoError(t, err)
	require.Len(t, script.Routine, 1)
	assert.Contains(t, script.Routine[0], "FROM pg_catalog.pg_indexes")
	assert.NotContains(t, script.Routine[0], "pg_catalog.pg_index i")
}

func TestGenerateScriptIsDeterministic(t *testing.T) {
	specs := []IndexSpec{
		orderIDSpec(),
		{TableName: "orders", IndexName: "idx_user_created", Columns: []ColumnSpec{{Name: "user_id"}, {Name: "created_at", Direction: DirectionDesc}}},
	}
	for _, dialect := range []string{"mysql", "postgresql"} {
		first, err := GenerateFullScript(specs, dialect, database.GeneratorConfig{})
		require.NoError(t, err)
		second, err := GenerateFullScript(specs, dialect, database.GeneratorConfig{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestGenerateScriptPreservesOrder(t *testing.T) {
	var specs []IndexSpec
	for i := range 5 {
		specs = append(specs, IndexSpec{
			TableName: "events",
			IndexName: fmt.Sprintf("idx_%d", 5-i),
			Columns:   []ColumnSpec{{Name: fmt.Sprintf("c%d", i)}},
		})
	}

	script, err := GenerateScript(GeneratorModeMysql, specs, database.GeneratorConfig{})
	require.NoError(t, err)
	require.Len(t, script.Invocations, 5)
	for i, invocation := range script.Invocations {
		assert.Contains(t, invocation, fmt.Sprintf("'idx_%d'", 5-i))
	}
}

func TestGenerateScriptDirectionsAndUniqueness(t *testing.T) {
	spec := IndexSpec{
		TableName: "orders",
		IndexName: "uq_user_created",
		Columns:   []ColumnSpec{{Name: "user_id"}, {Name: "Created_At", Direction: DirectionDesc}},
		Type:      IndexTypeUnique,
	}

	script, err := GenerateScript(GeneratorModePostgres, []IndexSpec{spec}, database.GeneratorConfig{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT dynamic_create_index('orders', 'uq_user_created', 'user_id, Created_At DESC', 'UNIQUE', 'USER_ID,CREATED_AT', 'AD')",
		script.Invocations[0])
}

func TestGenerateScriptColumnLimit(t *testing.T) {
	columns := func(n int) []ColumnSpec {
		var cs []ColumnSpec
		for i := range n {
			cs = append(cs, ColumnSpec{Name: fmt.Sprintf("c%d", i+1)})
		}
		return cs
	}

	tests := []struct {
		name    string
		mode    GeneratorMode
		config  database.GeneratorConfig
		columns int
		ok      bool
	}{
		{name: "mysql one column", mode: GeneratorModeMysql, columns: 1, ok: true},
		{name: "mysql at limit", mode: GeneratorModeMysql, columns: 16, ok: true},
		{name: "mysql above limit", mode: GeneratorModeMysql, columns: 17, ok: false},
		{name: "postgres at limit", mode: GeneratorModePostgres, columns: 32, ok: true},
		{name: "postgres above limit", mode: GeneratorModePostgres, columns: 33, ok: false},
		{name: "configured limit", mode: GeneratorModeMysql, config: database.GeneratorConfig{MaxColumns: 2}, columns: 3, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := IndexSpec{TableName: "wide", IndexName: "idx_wide", Columns: columns(tt.columns)}
			script, err := GenerateScript(tt.mode, []IndexSpec{spec}, tt.config)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrConfiguration)
				assert.Nil(t, script)
				return
			}
			require.NoError(t, err)
			expected := Normalize(spec.Columns)
			assert.Contains(t, script.Invocations[0], StringConstant(expected))
			assert.Equal(t, tt.columns, strings.Count(expected, ",")+1)
		})
	}
}

func TestGenerateScriptConfigurationErrors(t *testing.T) {
	valid := orderIDSpec()
	tests := []struct {
		name   string
		spec   IndexSpec
		config database.GeneratorConfig
		field  string
	}{
		{name: "empty table", spec: IndexSpec{IndexName: "idx", Columns: valid.Columns}, field: "table"},
		{name: "empty index name", spec: IndexSpec{TableName: "orders", Columns: valid.Columns}, field: "name"},
		{name: "empty columns", spec: IndexSpec{TableName: "orders", IndexName: "idx"}, field: "columns"},
		{name: "empty column name", spec: IndexSpec{TableName: "orders", IndexName: "idx", Columns: []ColumnSpec{{Name: ""}}}, field: "columns"},
		{name: "quoted table", spec: IndexSpec{TableName: "orders; DROP TABLE users", IndexName: "idx", Columns: valid.Columns}, field: "table"},
		{name: "column with quote", spec: IndexSpec{TableName: "orders", IndexName: "idx", Columns: []ColumnSpec{{Name: "a'b"}}}, field: "columns"},
		{name: "index name too long", spec: IndexSpec{TableName: "orders", IndexName: strings.Repeat("i", 64), Columns: valid.Columns}, field: "name"},
		{name: "unknown type", spec: IndexSpec{TableName: "orders", IndexName: "idx", Columns: valid.Columns, Type: IndexType(9)}, field: "type"},
		{name: "unknown direction", spec: IndexSpec{TableName: "orders", IndexName: "idx", Columns: []ColumnSpec{{Name: "a", Direction: Direction(7)}}}, field: "columns"},
		{name: "bad routine name", spec: valid, config: database.GeneratorConfig{RoutineName: "drop-it"}, field: "routine_name"},
		{name: "bad existence check", spec: valid, config: database.GeneratorConfig{PostgresExistenceCheck: "fuzzy"}, field: "postgres_existence_check"},
		{name: "negative max columns", spec: valid, config: database.GeneratorConfig{MaxColumns: -1}, field: "max_columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := GenerateScript(GeneratorModePostgres, []IndexSpec{valid, tt.spec}, tt.config)
			assert.Nil(t, script)
			require.ErrorIs(t, err, ErrConfiguration)

			var configErr *ConfigurationError
			require.True(t, errors.As(err, &configErr))
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestGenerateFullScriptUnknownDialect(t *testing.T) {
	script, err := GenerateFullScript([]IndexSpec{orderIDSpec()}, "oracle", database.GeneratorConfig{})
	assert.Empty(t, script)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestGenerateScriptCustomRoutineName(t *testing.T) {
	script, err := GenerateScript(GeneratorModeMysql, []IndexSpec{orderIDSpec()}, database.GeneratorConfig{RoutineName: "ensure_index"})
	require.NoError(t, err)
	assert.Equal(t, "DROP PROCEDURE IF EXISTS ensure_index", script.Routine[0])
	assert.True(t, strings.HasPrefix(script.Routine[1], "CREATE PROCEDURE ensure_index("))
	assert.True(t, strings.HasPrefix(script.Invocations[0], "CALL ensure_index("))
}

func TestCheckRenderingAgreement(t *testing.T) {
	assert.NoError(t, checkRenderingAgreement(0, []ColumnSpec{{Name: "a"}, {Name: "b", Direction: DirectionDesc}}))

	// A name with embedded whitespace renders into text that re-parses differently.
	err := checkRenderingAgreement(2, []ColumnSpec{{Name: "a b"}})
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Contains(t, err.Error(), "index #3")
}
