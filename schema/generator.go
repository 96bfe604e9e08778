package schema

import (
	"fmt"
	"strings"

	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/util"
)

// Script is a generated script in its three sections: routine definition,
// one invocation per spec, routine cleanup. Statements carry no terminator.
type Script struct {
	Mode        GeneratorMode
	RoutineName string
	Routine     []string
	Invocations []string
	Cleanup     string
}

// Statements returns every statement in execution order, ready to be sent to
// a driver one at a time.
func (s *Script) Statements() []string {
	stmts := append([]string{}, s.Routine...)
	stmts = append(stmts, s.Invocations...)
	return append(stmts, s.Cleanup)
}

// String renders the script as one text unit for a SQL client.
func (s *Script) String() string {
	if s.Mode == GeneratorModeMysql {
		return mysqlScriptString(s)
	}
	return postgresScriptString(s)
}

func writeStatementBlocks(b *strings.Builder, s *Script) {
	if len(s.Invocations) > 0 {
		b.WriteString("\n")
		for _, invocation := range s.Invocations {
			b.WriteString(invocation)
			b.WriteString(";\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(s.Cleanup)
	b.WriteString(";\n")
}

// Generator holds the resolved configuration for one dialect.
type Generator struct {
	mode           GeneratorMode
	maxColumns     int
	routineName    string
	existenceCheck string
}

func NewGenerator(mode GeneratorMode, config database.GeneratorConfig) (*Generator, error) {
	g := &Generator{
		mode:           mode,
		maxColumns:     config.MaxColumns,
		routineName:    config.RoutineName,
		existenceCheck: config.PostgresExistenceCheck,
	}

	switch mode {
	case GeneratorModeMysql:
		if g.maxColumns == 0 {
			g.maxColumns = MysqlMaxColumns
		}
		if g.routineName == "" {
			g.routineName = DefaultMysqlRoutineName
		}
	case GeneratorModePostgres:
		if g.maxColumns == 0 {
			g.maxColumns = PostgresMaxColumns
		}
		if g.routineName == "" {
			g.routineName = DefaultPostgresRoutineName
		}
	default:
		return nil, &ConfigurationError{Position: -1, Field: "dialect", Message: fmt.Sprintf("unsupported generator mode %s", mode)}
	}

	if g.maxColumns < 0 {
		return nil, &ConfigurationError{Position: -1, Field: "max_columns", Message: fmt.Sprintf("must be positive, got %d", g.maxColumns)}
	}
	if err := ValidateIdentifier(mode, g.routineName); err != nil {
		return nil, &ConfigurationError{Position: -1, Field: "routine_name", Message: err.Error()}
	}

	switch g.existenceCheck {
	case "":
		g.existenceCheck = database.ExistenceCheckStructure
	case database.ExistenceCheckStructure, database.ExistenceCheckName:
	default:
		return nil, &ConfigurationError{
			Position: -1,
			Field:    "postgres_existence_check",
			Message:  fmt.Sprintf("unknown value %q (expected %s or %s)", g.existenceCheck, database.ExistenceCheckStructure, database.ExistenceCheckName),
		}
	}
	return g, nil
}

// GenerateScript validates every spec and then renders the script. Nothing is
// returned unless all specs are valid.
func GenerateScript(mode GeneratorMode, specs []IndexSpec, config database.GeneratorConfig) (*Script, error) {
	g, err := NewGenerator(mode, config)
	if err != nil {
		return nil, err
	}
	return g.Generate(specs)
}

// GenerateFullScript parses the dialect selector and returns the script text.
func GenerateFullScript(specs []IndexSpec, dialect string, config database.GeneratorConfig) (string, error) {
	mode, err := ParseGeneratorMode(dialect)
	if err != nil {
		return "", err
	}
	script, err := GenerateScript(mode, specs, config)
	if err != nil {
		return "", err
	}
	return script.String(), nil
}

func (g *Generator) Generate(specs []IndexSpec) (*Script, error) {
	for i, spec := range specs {
		if err := g.validate(i, spec); err != nil {
			return nil, err
		}
	}

	script := &Script{
		Mode:        g.mode,
		RoutineName: g.routineName,
	}
	switch g.mode {
	case GeneratorModeMysql:
		script.Routine = mysqlRoutine(g.routineName)
		script.Cleanup = mysqlCleanup(g.routineName)
	case GeneratorModePostgres:
		script.Routine = postgresRoutine(g.routineName, g.existenceCheck)
		script.Cleanup = postgresCleanup(g.routineName)
	}

	for _, spec := range specs {
		script.Invocations = append(script.Invocations, g.invocation(spec))
	}
	return script, nil
}

func (g *Generator) invocation(spec IndexSpec) string {
	signature := SignatureOf(g.mode, spec)
	args := util.TransformSlice([]string{
		spec.TableName,
		spec.IndexName,
		RenderColumns(spec.Columns),
		spec.Type.String(),
		signature.Columns,
		signature.Collation,
	}, StringConstant)

	if g.mode == GeneratorModeMysql {
		return mysqlInvocation(g.routineName, args)
	}
	return postgresInvocation(g.routineName, args)
}

func (g *Generator) validate(position int, spec IndexSpec) error {
	if spec.TableName == "" {
		return specError(position, "table", "must not be empty")
	}
	if err := ValidateIdentifier(g.mode, spec.TableName); err != nil {
		return specError(position, "table", "%s", err)
	}
	if spec.IndexName == "" {
		return specError(position, "name", "must not be empty")
	}
	if err := ValidateIdentifier(g.mode, spec.IndexName); err != nil {
		return specError(position, "name", "%s", err)
	}
	if spec.Type != IndexTypeIndex && spec.Type != IndexTypeUnique {
		return specError(position, "type", "unknown index type %s", spec.Type)
	}

	if len(spec.Columns) == 0 {
		return specError(position, "columns", "must not be empty")
	}
	if len(spec.Columns) > g.maxColumns {
		return specError(position, "columns", "%d columns exceed the limit of %d for %s", len(spec.Columns), g.maxColumns, g.mode)
	}
	for _, column := range spec.Columns {
		if column.Name == "" {
			return specError(position, "columns", "column name must not be empty")
		}
		if err := ValidateIdentifier(g.mode, column.Name); err != nil {
			return specError(position, "columns", "%s", err)
		}
		if column.Direction != DirectionAsc && column.Direction != DirectionDesc {
			return specError(position, "columns", "column %s has unknown direction %s", column.Name, column.Direction)
		}
	}

	return checkRenderingAgreement(position, spec.Columns)
}

// The routine receives both the rendered column text (used for CREATE INDEX)
// and the normalized list (used for comparison). They must describe the same
// columns.
func checkRenderingAgreement(position int, columns []ColumnSpec) error {
	rendered := RenderColumns(columns)
	expected := Normalize(columns)
	normalized, err := NormalizeColumnText(rendered)
	if err != nil || normalized != expected {
		return &InvariantViolation{
			Position:   position,
			Rendered:   rendered,
			Expected:   expected,
			Normalized: normalized,
		}
	}
	return nil
}
