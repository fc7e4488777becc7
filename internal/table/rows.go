package table

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
)

// LengthOf returns how many values v supplies. Strings and byte slices are
// single values, as is anything that is not a slice or array; those report 0.
// A sequence reports its length.
func LengthOf(v any) int {
	switch v.(type) {
	case nil, string, []byte:
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	}
	return 0
}

// emptySequence reports whether v is a slice or array without elements.
// Such a value supplies no row, so it cannot be broadcast like a scalar.
func emptySequence(v any) bool {
	switch v.(type) {
	case nil, string, []byte:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// valueAt returns the i'th value of a sequence of the given length, or v
// itself when length is 0.
func valueAt(v any, length, i int) any {
	switch length {
	case 0:
		return v
	case 1:
		return reflect.ValueOf(v).Index(0).Interface()
	default:
		return reflect.ValueOf(v).Index(i).Interface()
	}
}

// Append adds rows to the table. Each entry of values maps an attribute to a
// scalar or a sequence. The number of new rows n is fixed by the supplied
// sequences: scalars and 1-element sequences are broadcast to all n rows,
// and any other sequence must be exactly n long. Attributes that are not
// supplied take their default. With no values at all one all-default row is
// appended. Either every row is appended or none is.
func (t *Table) Append(ctx context.Context, values map[string]any) error {
	defs, err := t.Attributes(ctx)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return molerrors.NewSchemaError(molerrors.CodeTableNotFound,
			"table "+t.name+" has no attributes").
			WithDetails(map[string]interface{}{"table": t.name})
	}

	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	unknown := make([]string, 0)
	for name := range values {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return unknownAttribute(t.name, unknown[0])
	}

	var (
		columns []string
		lengths []int
		n       = -1
	)
	for _, d := range defs {
		v, ok := values[d.Name]
		if !ok {
			if d.Default == nil && !d.PrimaryKey {
				return molerrors.NewSchemaError(molerrors.CodeMissingDefault,
					"attribute "+d.Name+" has no default; a value must be supplied").
					WithDetails(map[string]interface{}{"table": t.name, "attribute": d.Name})
			}
			continue
		}

		l := LengthOf(v)
		if emptySequence(v) {
			return molerrors.ValueCountMismatch(d.Name, 0, max(n, 1))
		}
		switch {
		case n < 0:
			n = max(l, 1)
		case l > 1 && l != n:
			if n != 1 {
				return molerrors.ValueCountMismatch(d.Name, l, n)
			}
			n = l
		}
		columns = append(columns, d.Name)
		lengths = append(lengths, l)
	}

	if len(columns) == 0 {
		_, err := t.store.Exec(ctx, "INSERT INTO "+store.Quote(t.name)+" DEFAULT VALUES")
		if err == nil {
			t.logger.Debug("table: appended default row")
		}
		return err
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = store.Quote(c)
		marks[i] = "?"
	}
	stmt := "INSERT INTO " + store.Quote(t.name) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	params := make([][]any, n)
	for r := range params {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = valueAt(values[c], lengths[i], r)
		}
		params[r] = row
	}

	if err := t.store.ExecMany(ctx, stmt, params); err != nil {
		return err
	}
	t.logger.Debug("table: appended rows", zap.Int("rows", n), zap.Strings("attributes", columns))
	return nil
}

// Get returns every value of one attribute in row order.
func (t *Table) Get(ctx context.Context, name string) ([]any, error) {
	if err := t.requireAttribute(ctx, name); err != nil {
		return nil, err
	}
	res, err := t.store.Query(ctx,
		"SELECT "+store.Quote(name)+" FROM "+store.Quote(t.name)+" ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	out := make([]any, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = row[0]
	}
	return out, nil
}

// Set assigns values to an existing attribute. A scalar or a 1-element
// sequence is written to every row; a sequence as long as the row count is
// written row by row in row order. An empty sequence only fits an empty
// table.
func (t *Table) Set(ctx context.Context, name string, values any) error {
	if err := t.requireAttribute(ctx, name); err != nil {
		return err
	}
	return t.assign(ctx, name, values)
}

func (t *Table) assign(ctx context.Context, name string, values any) error {
	l := LengthOf(values)
	col := store.Quote(name)
	tbl := store.Quote(t.name)

	if emptySequence(values) {
		n, err := t.NRows(ctx)
		if err != nil || n == 0 {
			return err
		}
		return molerrors.ValueCountMismatch(name, 0, n)
	}

	if l <= 1 {
		_, err := t.store.Exec(ctx, "UPDATE "+tbl+" SET "+col+" = ?", valueAt(values, l, 0))
		return err
	}

	ids, err := t.RowIDs(ctx)
	if err != nil {
		return err
	}
	if l != len(ids) {
		return molerrors.ValueCountMismatch(name, l, len(ids))
	}
	params := make([][]any, len(ids))
	for i, id := range ids {
		params[i] = []any{valueAt(values, l, i), id}
	}
	return t.store.ExecMany(ctx, "UPDATE "+tbl+" SET "+col+" = ? WHERE rowid = ?", params)
}

// DeleteRows removes the rows with the given identifiers. Identifiers that
// are not present are ignored.
func (t *Table) DeleteRows(ctx context.Context, ids ...int64) error {
	params := make([][]any, len(ids))
	for i, id := range ids {
		params[i] = []any{id}
	}
	return t.store.ExecMany(ctx, "DELETE FROM "+store.Quote(t.name)+" WHERE rowid = ?", params)
}

func (t *Table) requireAttribute(ctx context.Context, name string) error {
	ok, err := t.Contains(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return unknownAttribute(t.name, name)
	}
	return nil
}
