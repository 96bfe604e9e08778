package schema

import (
	"fmt"
	"strings"
)

const DefaultMysqlRoutineName = "Dynamic_Create_Index"

// MySQL allows at most 16 key parts per index.
const MysqlMaxColumns = 16

// The procedure compares every non-primary index of the table against the
// precomputed signature: upper-cased columns in SEQ_IN_INDEX order, NON_UNIQUE,
// and the A/D collation string. Prefix and functional key parts never match.
const mysqlRoutineTemplate = `CREATE PROCEDURE {{routine}}(
    IN p_target_table VARCHAR(64),
    IN p_target_index_name VARCHAR(64),
    IN p_target_columns TEXT,
    IN p_target_index_type VARCHAR(16),
    IN p_normalized_columns TEXT,
    IN p_expected_collation TEXT
)
BEGIN
    DECLARE v_index_exists INT DEFAULT 0;
    DECLARE v_expected_non_unique INT DEFAULT {{non_unique_index}};
    DECLARE v_message TEXT;

    IF UPPER(p_target_index_type) = 'UNIQUE' THEN
        SET v_expected_non_unique = {{non_unique_unique}};
    END IF;

    SET SESSION group_concat_max_len = GREATEST(@@SESSION.group_concat_max_len, 65535);

    SELECT COUNT(*) INTO v_index_exists
    FROM (
        SELECT
            GROUP_CONCAT(
                CASE WHEN s.COLUMN_NAME IS NULL OR s.SUB_PART IS NOT NULL THEN '?' ELSE UPPER(s.COLUMN_NAME) END
                ORDER BY s.SEQ_IN_INDEX SEPARATOR ','
            ) AS index_columns,
            MAX(s.NON_UNIQUE) AS non_unique,
            GROUP_CONCAT(COALESCE(s.COLLATION, 'A') ORDER BY s.SEQ_IN_INDEX SEPARATOR '') AS index_collation
        FROM information_schema.STATISTICS s
        WHERE s.TABLE_SCHEMA = DATABASE()
          AND s.TABLE_NAME = p_target_table
          AND s.INDEX_NAME <> 'PRIMARY'
        GROUP BY s.INDEX_NAME
    ) candidates
    WHERE candidates.index_columns = p_normalized_columns
      AND candidates.non_unique = v_expected_non_unique
      AND candidates.index_collation = p_expected_collation;

    IF v_index_exists > 0 THEN
        SET v_message = CONCAT('[SKIPPED]: matching index ', p_target_index_name, ' (', p_normalized_columns, ') already exists.');
    ELSE
        IF UPPER(p_target_index_type) = 'UNIQUE' THEN
            SET @idxdef_create_sql = CONCAT('CREATE UNIQUE INDEX ', p_target_index_name, ' ON ', p_target_table, ' (', p_target_columns, ')');
        ELSE
            SET @idxdef_create_sql = CONCAT('CREATE INDEX ', p_target_index_name, ' ON ', p_target_table, ' (', p_target_columns, ')');
        END IF;

        PREPARE idxdef_create_stmt FROM @idxdef_create_sql;
        EXECUTE idxdef_create_stmt;
        DEALLOCATE PREPARE idxdef_create_stmt;

        SET v_message = CONCAT('[CREATED]: index ', p_target_index_name, ' (', p_normalized_columns, ') created successfully.');
    END IF;

    SELECT v_message AS message;
END`

func mysqlRoutine(name string) []string {
	replacer := strings.NewReplacer(
		"{{routine}}", name,
		"{{non_unique_index}}", UniquenessClass(GeneratorModeMysql, IndexTypeIndex),
		"{{non_unique_unique}}", UniquenessClass(GeneratorModeMysql, IndexTypeUnique),
	)
	return []string{
		fmt.Sprintf("DROP PROCEDURE IF EXISTS %s", name),
		replacer.Replace(mysqlRoutineTemplate),
	}
}

func mysqlInvocation(name string, args []string) string {
	return fmt.Sprintf("CALL %s(%s)", name, strings.Join(args, ", "))
}

func mysqlCleanup(name string) string {
	return fmt.Sprintf("DROP PROCEDURE IF EXISTS %s", name)
}

// The mysql client needs a custom delimiter around a procedure body.
func mysqlScriptString(s *Script) string {
	var b strings.Builder
	b.WriteString("DELIMITER $$\n")
	for _, stmt := range s.Routine {
		b.WriteString(stmt)
		b.WriteString("$$\n")
	}
	b.WriteString("DELIMITER ;\n")
	writeStatementBlocks(&b, s)
	return b.String()
}
