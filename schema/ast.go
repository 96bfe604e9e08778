package schema

import (
	"fmt"
	"strings"
)

type GeneratorMode int

const (
	GeneratorModeMysql = GeneratorMode(iota)
	GeneratorModePostgres
)

func (m GeneratorMode) String() string {
	switch m {
	case GeneratorModeMysql:
		return "mysql"
	case GeneratorModePostgres:
		return "postgresql"
	default:
		return fmt.Sprintf("GeneratorMode(%d)", int(m))
	}
}

// ParseGeneratorMode accepts the dialect selectors "mysql" and "postgresql",
// case-insensitively.
func ParseGeneratorMode(dialect string) (GeneratorMode, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "mysql":
		return GeneratorModeMysql, nil
	case "postgresql":
		return GeneratorModePostgres, nil
	default:
		return 0, &ConfigurationError{
			Position: -1,
			Field:    "dialect",
			Message:  fmt.Sprintf("unsupported dialect %q (expected mysql or postgresql)", dialect),
		}
	}
}

type Direction int

const (
	DirectionAsc = Direction(iota)
	DirectionDesc
)

func (d Direction) String() string {
	switch d {
	case DirectionAsc:
		return "ASC"
	case DirectionDesc:
		return "DESC"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

type ColumnSpec struct {
	Name      string
	Direction Direction
}

type IndexType int

const (
	IndexTypeIndex = IndexType(iota)
	IndexTypeUnique
)

func (t IndexType) String() string {
	switch t {
	case IndexTypeIndex:
		return "INDEX"
	case IndexTypeUnique:
		return "UNIQUE"
	default:
		return fmt.Sprintf("IndexType(%d)", int(t))
	}
}

// ParseIndexType maps "INDEX" and "UNIQUE" (any case) to an IndexType. An empty
// string means INDEX.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INDEX":
		return IndexTypeIndex, nil
	case "UNIQUE":
		return IndexTypeUnique, nil
	default:
		return 0, fmt.Errorf("unknown index type %q (expected INDEX or UNIQUE)", s)
	}
}

// IndexSpec describes one desired index. Column order is the physical key order.
type IndexSpec struct {
	TableName string
	IndexName string
	Columns   []ColumnSpec
	Type      IndexType
}
