package types

import "sort"

// Change records one attribute whose value differs between the two sides of
// a matched row. Old is the value in the table diffed against, New the value
// in the table the diff was taken from.
type Change struct {
	Column string `json:"column" yaml:"column"`
	Old    any    `json:"old" yaml:"old"`
	New    any    `json:"new" yaml:"new"`
}

// DiffReport describes how table A differs from table B.
type DiffReport struct {
	// ColumnsAdded are attributes present in A but not in B
	ColumnsAdded []string `json:"columns_added,omitempty" yaml:"columns_added,omitempty"`

	// ColumnsRemoved are attributes present in B but not in A
	ColumnsRemoved []string `json:"columns_removed,omitempty" yaml:"columns_removed,omitempty"`

	// Changed maps row identifiers present in both tables to the differing shared attributes
	Changed map[int64][]Change `json:"changed,omitempty" yaml:"changed,omitempty"`

	// AddedColumns names the values of each Added row
	AddedColumns []string `json:"columns_in_added_rows,omitempty" yaml:"columns_in_added_rows,omitempty"`

	// Added holds rows of A whose row identifier is absent from B
	Added map[int64][]any `json:"added,omitempty" yaml:"added,omitempty"`

	// RemovedColumns names the values of each Removed row
	RemovedColumns []string `json:"columns_in_removed_rows,omitempty" yaml:"columns_in_removed_rows,omitempty"`

	// Removed holds rows of B whose row identifier is absent from A
	Removed map[int64][]any `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// IsEmpty reports whether the two tables were identical.
func (r *DiffReport) IsEmpty() bool {
	return len(r.ColumnsAdded) == 0 &&
		len(r.ColumnsRemoved) == 0 &&
		len(r.Changed) == 0 &&
		len(r.Added) == 0 &&
		len(r.Removed) == 0
}

// ChangedRowIDs returns the row identifiers in Changed, ascending.
func (r *DiffReport) ChangedRowIDs() []int64 {
	return sortedKeys(r.Changed)
}

// AddedRowIDs returns the row identifiers in Added, ascending.
func (r *DiffReport) AddedRowIDs() []int64 {
	return sortedKeys(r.Added)
}

// RemovedRowIDs returns the row identifiers in Removed, ascending.
func (r *DiffReport) RemovedRowIDs() []int64 {
	return sortedKeys(r.Removed)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
