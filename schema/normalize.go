package schema

import (
	"fmt"
	"strings"

	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/util"
)

// Marker for key parts that are not a plain column (expressions, prefixes).
// It can never equal a normalized column name.
const nonColumnMarker = "?"

// Signature is what the generated routine compares catalog indexes against.
type Signature struct {
	Columns    string // e.g. "USER_ID,CREATED_AT"
	Collation  string // e.g. "AD"
	Uniqueness string // the catalog's literal for the index type
}

// Normalize upper-cases column names, drops directions and joins them with
// commas, keeping the order.
func Normalize(columns []ColumnSpec) string {
	return strings.Join(util.TransformSlice(columns, func(c ColumnSpec) string {
		return strings.ToUpper(strings.TrimSpace(c.Name))
	}), ",")
}

// NormalizeColumnText normalizes the textual form, e.g. "a, b DESC".
func NormalizeColumnText(text string) (string, error) {
	columns, err := ParseColumnText(text)
	if err != nil {
		return "", err
	}
	return Normalize(columns), nil
}

// ParseColumnText parses comma-separated "name [ASC|DESC]" entries.
func ParseColumnText(text string) ([]ColumnSpec, error) {
	var columns []ColumnSpec
	for i, entry := range strings.Split(text, ",") {
		fields := strings.Fields(entry)
		switch len(fields) {
		case 0:
			return nil, fmt.Errorf("empty column entry at position %d in %q", i+1, text)
		case 1:
			columns = append(columns, ColumnSpec{Name: fields[0], Direction: DirectionAsc})
		case 2:
			direction, err := parseDirection(fields[1])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", fields[0], err)
			}
			columns = append(columns, ColumnSpec{Name: fields[0], Direction: direction})
		default:
			return nil, fmt.Errorf("unexpected tokens in column entry %q", strings.TrimSpace(entry))
		}
	}
	return columns, nil
}

func parseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "ASC":
		return DirectionAsc, nil
	case "DESC":
		return DirectionDesc, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (expected ASC or DESC)", s)
	}
}

// CollationSignature has one character per column: 'D' for DESC, 'A' otherwise.
func CollationSignature(columns []ColumnSpec) string {
	var b strings.Builder
	for _, column := range columns {
		if column.Direction == DirectionDesc {
			b.WriteByte('D')
		} else {
			b.WriteByte('A')
		}
	}
	return b.String()
}

// UniquenessClass returns the literal the catalog uses for indexType.
// information_schema.STATISTICS.NON_UNIQUE is 0 for unique indexes, while
// pg_index.indisunique is true for them.
func UniquenessClass(mode GeneratorMode, indexType IndexType) string {
	unique := indexType == IndexTypeUnique
	switch mode {
	case GeneratorModePostgres:
		if unique {
			return "TRUE"
		}
		return "FALSE"
	default:
		if unique {
			return "0"
		}
		return "1"
	}
}

func SignatureOf(mode GeneratorMode, spec IndexSpec) Signature {
	return Signature{
		Columns:    Normalize(spec.Columns),
		Collation:  CollationSignature(spec.Columns),
		Uniqueness: UniquenessClass(mode, spec.Type),
	}
}

// catalogSignature computes the same key for an index read from a catalog.
func catalogSignature(mode GeneratorMode, index database.Index) Signature {
	var columns []string
	var collation strings.Builder
	for _, column := range index.Columns {
		if column.Expression || column.Name == "" {
			columns = append(columns, nonColumnMarker)
		} else {
			columns = append(columns, strings.ToUpper(column.Name))
		}
		if column.Descending {
			collation.WriteByte('D')
		} else {
			collation.WriteByte('A')
		}
	}

	indexType := IndexTypeIndex
	if index.Unique {
		indexType = IndexTypeUnique
	}
	return Signature{
		Columns:    strings.Join(columns, ","),
		Collation:  collation.String(),
		Uniqueness: UniquenessClass(mode, indexType),
	}
}

// RenderColumns renders the column list passed to the routine and spliced into
// CREATE INDEX. ASC is the default and is left out.
func RenderColumns(columns []ColumnSpec) string {
	return strings.Join(util.TransformSlice(columns, func(c ColumnSpec) string {
		if c.Direction == DirectionDesc {
			return c.Name + " DESC"
		}
		return c.Name
	}), ", ")
}

// StringConstant renders s as a single-quoted SQL literal.
func StringConstant(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
