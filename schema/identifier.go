package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Names are spliced into SQL text unquoted, so only plain identifiers pass.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// MaxIdentifierLength is 64 for MySQL and 63 (NAMEDATALEN - 1) for PostgreSQL.
func MaxIdentifierLength(mode GeneratorMode) int {
	if mode == GeneratorModePostgres {
		return 63
	}
	return 64
}

func ValidateIdentifier(mode GeneratorMode, name string) error {
	if name == "" {
		return fmt.Errorf("must not be empty")
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%q is not a plain identifier (allowed: letters, digits, '_' and '$', not starting with a digit or '$')", name)
	}
	if limit := MaxIdentifierLength(mode); len(name) > limit {
		return fmt.Errorf("%q is longer than %d characters", name, limit)
	}
	return nil
}

// CatalogName is how the catalog stores an unquoted identifier.
// PostgreSQL folds unquoted identifiers to lower case; MySQL keeps them.
func CatalogName(mode GeneratorMode, name string) string {
	if mode == GeneratorModePostgres {
		return strings.ToLower(name)
	}
	return name
}

// sameIndexName compares index names the way the engine does. MySQL index
// names are case-insensitive.
func sameIndexName(mode GeneratorMode, specName string, catalogName string) bool {
	if mode == GeneratorModeMysql {
		return strings.EqualFold(specName, catalogName)
	}
	return CatalogName(mode, specName) == catalogName
}
