package database

import (
	"cmp"
	"slices"
)

// Index is one index as read from a catalog (or from a manifest standing in for one).
type Index struct {
	Table   string
	Name    string
	Unique  bool
	Primary bool
	// Partial indexes carry a predicate; they never satisfy a plain column list.
	Partial bool
	Columns []IndexColumn
}

type IndexColumn struct {
	Name       string
	Descending bool
	// Expression is set for functional or prefix key parts, which have no plain column name.
	Expression bool
}

// IndexRow is one (index, column) row of a catalog query. Rows are grouped into
// Index values by GroupIndexRows.
type IndexRow struct {
	Table      string `db:"table_name"`
	Name       string `db:"index_name"`
	Unique     bool   `db:"is_unique"`
	Primary    bool   `db:"is_primary"`
	Partial    bool   `db:"is_partial"`
	Seq        int    `db:"seq"`
	Column     string `db:"column_name"`
	Descending bool   `db:"is_descending"`
	Expression bool   `db:"is_expression"`
}

// GroupIndexRows folds per-column rows into indexes. The first appearance of an
// index decides its position in the result; columns are ordered by Seq.
func GroupIndexRows(rows []IndexRow) []Index {
	var indexes []Index
	positions := map[[2]string]int{}
	for _, row := range rows {
		key := [2]string{row.Table, row.Name}
		pos, ok := positions[key]
		if !ok {
			pos = len(indexes)
			positions[key] = pos
			indexes = append(indexes, Index{
				Table:   row.Table,
				Name:    row.Name,
				Unique:  row.Unique,
				Primary: row.Primary,
				Partial: row.Partial,
			})
		}
		indexes[pos].Columns = append(indexes[pos].Columns, IndexColumn{
			Name:       row.Column,
			Descending: row.Descending,
			Expression: row.Expression,
		})
	}

	seqs := map[[2]string][]int{}
	for _, row := range rows {
		key := [2]string{row.Table, row.Name}
		seqs[key] = append(seqs[key], row.Seq)
	}
	for i := range indexes {
		key := [2]string{indexes[i].Table, indexes[i].Name}
		indexes[i].Columns = sortColumnsBySeq(indexes[i].Columns, seqs[key])
	}
	return indexes
}

func sortColumnsBySeq(columns []IndexColumn, seqs []int) []IndexColumn {
	type seqColumn struct {
		seq    int
		column IndexColumn
	}
	tmp := make([]seqColumn, len(columns))
	for i := range columns {
		tmp[i] = seqColumn{seq: seqs[i], column: columns[i]}
	}
	slices.SortStableFunc(tmp, func(a, b seqColumn) int {
		return cmp.Compare(a.seq, b.seq)
	})
	sorted := make([]IndexColumn, len(tmp))
	for i, t := range tmp {
		sorted[i] = t.column
	}
	return sorted
}

// FilterIndexes keeps the indexes of targetTables. An empty filter keeps everything.
func FilterIndexes(indexes []Index, targetTables []string) []Index {
	if len(targetTables) == 0 {
		return indexes
	}
	var filtered []Index
	for _, index := range indexes {
		if slices.Contains(targetTables, index.Table) {
			filtered = append(filtered, index)
		}
	}
	return filtered
}
