package schema

import (
	"fmt"
	"slices"

	"github.com/sqldef/idxdef/database"
)

type PlanStatus int

const (
	PlanCreated = PlanStatus(iota)
	PlanSkipped
	PlanFailed
)

func (s PlanStatus) String() string {
	switch s {
	case PlanCreated:
		return "CREATED"
	case PlanSkipped:
		return "SKIPPED"
	case PlanFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("PlanStatus(%d)", int(s))
	}
}

type PlanResult struct {
	Spec    IndexSpec
	Status  PlanStatus
	Message string
}

// Plan replays, in order, the decision the generated routine makes for every
// spec against catalog, without a database. Created indexes are added to the
// returned catalog, so planning again over it yields only PlanSkipped. catalog
// itself is not modified.
//
// PlanFailed stands for the duplicate-object error the engine raises when the
// name is taken by an index that does not match.
func Plan(mode GeneratorMode, specs []IndexSpec, catalog []database.Index, config database.GeneratorConfig) ([]PlanResult, []database.Index, error) {
	g, err := NewGenerator(mode, config)
	if err != nil {
		return nil, nil, err
	}
	for i, spec := range specs {
		if err := g.validate(i, spec); err != nil {
			return nil, nil, err
		}
	}

	current := slices.Clone(catalog)
	var results []PlanResult
	for _, spec := range specs {
		result := g.plan(spec, current)
		if result.Status == PlanCreated {
			current = append(current, CatalogIndex(mode, spec))
		}
		results = append(results, result)
	}
	return results, current, nil
}

func (g *Generator) plan(spec IndexSpec, catalog []database.Index) PlanResult {
	signature := SignatureOf(g.mode, spec)
	table := CatalogName(g.mode, spec.TableName)

	for _, index := range catalog {
		if index.Table == table && g.satisfies(spec, signature, index) {
			return PlanResult{
				Spec:    spec,
				Status:  PlanSkipped,
				Message: fmt.Sprintf("[SKIPPED]: matching index %s (%s) already exists.", spec.IndexName, signature.Columns),
			}
		}
	}

	for _, index := range catalog {
		// MySQL index names are unique per table, PostgreSQL ones per schema.
		if g.mode == GeneratorModeMysql && index.Table != table {
			continue
		}
		if sameIndexName(g.mode, spec.IndexName, index.Name) {
			return PlanResult{
				Spec:    spec,
				Status:  PlanFailed,
				Message: fmt.Sprintf("[FAILED]: index %s (%s) conflicts with existing index %s on %s.", spec.IndexName, signature.Columns, index.Name, index.Table),
			}
		}
	}

	return PlanResult{
		Spec:    spec,
		Status:  PlanCreated,
		Message: fmt.Sprintf("[CREATED]: index %s (%s) created successfully.", spec.IndexName, signature.Columns),
	}
}

func (g *Generator) satisfies(spec IndexSpec, signature Signature, index database.Index) bool {
	if g.mode == GeneratorModePostgres && g.existenceCheck == database.ExistenceCheckName {
		return sameIndexName(g.mode, spec.IndexName, index.Name)
	}
	if index.Primary || index.Partial {
		return false
	}
	return catalogSignature(g.mode, index) == signature
}

// CatalogIndex is the index the routine creates for spec, as the catalog reports it.
func CatalogIndex(mode GeneratorMode, spec IndexSpec) database.Index {
	index := database.Index{
		Table:  CatalogName(mode, spec.TableName),
		Name:   CatalogName(mode, spec.IndexName),
		Unique: spec.Type == IndexTypeUnique,
	}
	for _, column := range spec.Columns {
		index.Columns = append(index.Columns, database.IndexColumn{
			Name:       CatalogName(mode, column.Name),
			Descending: column.Direction == DirectionDesc,
		})
	}
	return index
}
