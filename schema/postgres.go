package schema

import (
	"fmt"
	"strings"

	"github.com/sqldef/idxdef/database"
)

const DefaultPostgresRoutineName = "dynamic_create_index"

// INDEX_MAX_KEYS of a default PostgreSQL build.
const PostgresMaxColumns = 32

// Argument types of the function, needed to drop it.
const postgresRoutineArgTypes = "VARCHAR, VARCHAR, TEXT, VARCHAR, TEXT, TEXT"

const postgresRoutineTemplate = `CREATE OR REPLACE FUNCTION {{routine}}(
    p_target_table VARCHAR,
    p_target_index_name VARCHAR,
    p_target_columns TEXT,
    p_target_index_type VARCHAR,
    p_normalized_columns TEXT,
    p_expected_collation TEXT
) RETURNS TEXT AS $$
DECLARE
    v_index_exists BOOLEAN;
    v_expected_unique BOOLEAN := {{unique_index}};
BEGIN
    IF upper(p_target_index_type) = 'UNIQUE' THEN
        v_expected_unique := {{unique_unique}};
    END IF;

{{existence_check}}

    IF v_index_exists THEN
        RETURN format('[SKIPPED]: matching index %s (%s) already exists.', p_target_index_name, p_normalized_columns);
    END IF;

    IF upper(p_target_index_type) = 'UNIQUE' THEN
        EXECUTE format('CREATE UNIQUE INDEX %s ON %s (%s)', p_target_index_name, p_target_table, p_target_columns);
    ELSE
        EXECUTE format('CREATE INDEX %s ON %s (%s)', p_target_index_name, p_target_table, p_target_columns);
    END IF;

    RETURN format('[CREATED]: index %s (%s) created successfully.', p_target_index_name, p_normalized_columns);
END;
$$ LANGUAGE plpgsql`

// Compares key columns (up to indnkeyatts, in indkey order) with indoption bit 0
// as the direction. Primary keys, partial and expression indexes are left out.
const postgresStructureCheck = `    SELECT EXISTS (
        SELECT 1
        FROM (
            SELECT
                i.indisunique AS is_unique,
                string_agg(COALESCE(upper(a.attname::text), '?'), ',' ORDER BY k.ord) AS index_columns,
                string_agg(CASE WHEN (k.opt & 1) = 1 THEN 'D' ELSE 'A' END, '' ORDER BY k.ord) AS index_collation
            FROM pg_catalog.pg_index i
            JOIN pg_catalog.pg_class t ON t.oid = i.indrelid
            JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
            CROSS JOIN LATERAL unnest(i.indkey::int2[], i.indoption::int2[]) WITH ORDINALITY AS k(attnum, opt, ord)
            LEFT JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum AND k.attnum > 0
            WHERE n.nspname = current_schema()
              AND t.relname = lower(p_target_table)
              AND NOT i.indisprimary
              AND i.indpred IS NULL
              AND i.indexprs IS NULL
              AND k.ord <= i.indnkeyatts
            GROUP BY i.indexrelid, i.indisunique
        ) candidates
        WHERE candidates.index_columns = p_normalized_columns
          AND candidates.is_unique = v_expected_unique
          AND candidates.index_collation = p_expected_collation
    ) INTO v_index_exists;`

// Only the name is looked at: a renamed but otherwise identical index is
// treated as missing.
const postgresNameCheck = `    SELECT EXISTS (
        SELECT 1
        FROM pg_catalog.pg_indexes
        WHERE schemaname = current_schema()
          AND tablename = lower(p_target_table)
          AND indexname = lower(p_target_index_name)
    ) INTO v_index_exists;`

func postgresRoutine(name string, existenceCheck string) []string {
	check := postgresStructureCheck
	if existenceCheck == database.ExistenceCheckName {
		check = postgresNameCheck
	}

	replacer := strings.NewReplacer(
		"{{routine}}", name,
		"{{unique_index}}", UniquenessClass(GeneratorModePostgres, IndexTypeIndex),
		"{{unique_unique}}", UniquenessClass(GeneratorModePostgres, IndexTypeUnique),
		"{{existence_check}}", check,
	)
	return []string{replacer.Replace(postgresRoutineTemplate)}
}

func postgresInvocation(name string, args []string) string {
	return fmt.Sprintf("SELECT %s(%s)", name, strings.Join(args, ", "))
}

func postgresCleanup(name string) string {
	return fmt.Sprintf("DROP FUNCTION IF EXISTS %s(%s)", name, postgresRoutineArgTypes)
}

func postgresScriptString(s *Script) string {
	var b strings.Builder
	for _, stmt := range s.Routine {
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	writeStatementBlocks(&b, s)
	return b.String()
}
