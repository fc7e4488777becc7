package table

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// Equal reports whether t and other hold the same attribute names and the
// same rows, where a row is its identifier plus its values. Attribute order
// does not matter. other may live in another store, which is attached for
// the duration of the comparison, so Equal must not be called inside a
// Scope.
func (t *Table) Equal(ctx context.Context, other *Table) (bool, error) {
	if other == nil {
		return false, molerrors.NewInternalError("table: compare with nil table", nil)
	}

	n1, err := t.NRows(ctx)
	if err != nil {
		return false, err
	}
	n2, err := other.NRows(ctx)
	if err != nil {
		return false, err
	}
	if n1 != n2 {
		return false, nil
	}

	names, err := t.Names(ctx)
	if err != nil {
		return false, err
	}
	otherNames, err := other.Names(ctx)
	if err != nil {
		return false, err
	}
	if !sameSet(names, otherNames) {
		return false, nil
	}
	if len(names) == 0 {
		return true, nil
	}

	equal := false
	err = t.withOther(ctx, other, func(ref string) error {
		self := store.Qualified(store.MainAlias, t.name)
		sel := "SELECT rowid, " + quoteAll(names) + " FROM "

		missing, err := t.store.QueryInt(ctx,
			"SELECT COUNT(*) FROM ("+sel+ref+" EXCEPT "+sel+self+")")
		if err != nil || missing > 0 {
			return err
		}
		extra, err := t.store.QueryInt(ctx,
			"SELECT COUNT(*) FROM ("+sel+self+" EXCEPT "+sel+ref+")")
		if err != nil {
			return err
		}
		equal = extra == 0
		return nil
	})
	return equal, err
}

// Diff describes how t differs from other, taking other as the earlier
// state: changed rows carry other's value as Old and t's value as New.
//
// Attribute differences are reported by name. Rows are matched by
// identifier: rows of t whose identifier is absent from other are added,
// the reverse are removed, and rows present in both whose shared attributes
// differ are changed. When the tables share no attribute, which includes a
// table that does not exist, only the attribute differences are reported.
// Diff must not be called inside a Scope.
func (t *Table) Diff(ctx context.Context, other *Table) (*types.DiffReport, error) {
	if other == nil {
		return nil, molerrors.NewInternalError("table: diff against nil table", nil)
	}

	names, err := t.Names(ctx)
	if err != nil {
		return nil, err
	}
	otherNames, err := other.Names(ctx)
	if err != nil {
		return nil, err
	}

	report := &types.DiffReport{
		ColumnsAdded:   missingFrom(names, otherNames),
		ColumnsRemoved: missingFrom(otherNames, names),
	}
	shared := intersect(names, otherNames)

	// Without a shared attribute there is nothing to match rows on.
	if len(shared) == 0 {
		return report, nil
	}

	err = t.withOther(ctx, other, func(ref string) error {
		self := store.Qualified(store.MainAlias, t.name)

		changed, err := t.changedRows(ctx, self, ref, shared)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			report.Changed = changed
		}

		added, err := t.unmatchedRows(ctx, self, ref, names)
		if err != nil {
			return err
		}
		setAdded(report, names, added)

		removed, err := t.unmatchedRows(ctx, ref, self, otherNames)
		if err != nil {
			return err
		}
		setRemoved(report, otherNames, removed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("table: diff computed",
		zap.String("other", other.store.Identity()+"/"+other.name),
		zap.Int("changed", len(report.Changed)),
		zap.Int("added", len(report.Added)),
		zap.Int("removed", len(report.Removed)))
	return report, nil
}

// withOther attaches other's store for the duration of fn and passes the
// qualified name of other's table. The attachment is always released.
func (t *Table) withOther(ctx context.Context, other *Table, fn func(ref string) error) (err error) {
	att, err := t.store.Attach(ctx, other.store)
	if err != nil {
		return err
	}
	defer func() {
		if detachErr := att.Detach(ctx); err == nil {
			err = detachErr
		}
	}()
	return fn(store.Qualified(att.Alias, other.name))
}

// changedRows pairs the rows that exist on one side only (by full value)
// and share an identifier. Each side is tagged so that within a pair the
// earlier state sorts first.
func (t *Table) changedRows(ctx context.Context, self, ref string, shared []string) (map[int64][]types.Change, error) {
	cols := quoteAll(shared)
	sel := "SELECT rowid, " + cols + " FROM "
	stmt := "SELECT 0, * FROM (" + sel + ref + " EXCEPT " + sel + self + ")" +
		" UNION ALL " +
		"SELECT 1, * FROM (" + sel + self + " EXCEPT " + sel + ref + ")" +
		" ORDER BY 2, 1"

	res, err := t.store.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	changed := make(map[int64][]types.Change)
	var prev []any
	for _, row := range res.Rows {
		if prev == nil || prev[0] != int64(0) || row[0] != int64(1) || prev[1] != row[1] {
			prev = row
			continue
		}
		var changes []types.Change
		for i, name := range shared {
			old, cur := prev[i+2], row[i+2]
			if !valuesEqual(old, cur) {
				changes = append(changes, types.Change{Column: name, Old: old, New: cur})
			}
		}
		if len(changes) > 0 {
			changed[row[1].(int64)] = changes
		}
		prev = nil
	}
	return changed, nil
}

// unmatchedRows returns the rows of from whose identifier does not occur in
// against, with the values of columns.
func (t *Table) unmatchedRows(ctx context.Context, from, against string, columns []string) (map[int64][]any, error) {
	res, err := t.store.Query(ctx,
		"SELECT rowid, "+quoteAll(columns)+" FROM "+from+
			" WHERE rowid NOT IN (SELECT rowid FROM "+against+") ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]any, len(res.Rows))
	for _, row := range res.Rows {
		out[row[0].(int64)] = row[1:]
	}
	return out, nil
}

func setAdded(r *types.DiffReport, columns []string, rows map[int64][]any) {
	if len(rows) > 0 {
		r.AddedColumns = columns
		r.Added = rows
	}
}

func setRemoved(r *types.DiffReport, columns []string, rows map[int64][]any) {
	if len(rows) > 0 {
		r.RemovedColumns = columns
		r.Removed = rows
	}
}

// valuesEqual compares two stored values the way SQLite compares them for
// equality of numeric values, so 1 and 1.0 are equal.
func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	}
	return a == b
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = store.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// missingFrom returns the names of a that are not in b, in a's order.
func missingFrom(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, n := range b {
		in[n] = true
	}
	var out []string
	for _, n := range a {
		if !in[n] {
			out = append(out, n)
		}
	}
	return out
}

// intersect returns the names of a that are also in b, in a's order.
func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, n := range b {
		in[n] = true
	}
	var out []string
	for _, n := range a {
		if in[n] {
			out = append(out, n)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return len(missingFrom(a, b)) == 0 && len(missingFrom(b, a)) == 0
}
