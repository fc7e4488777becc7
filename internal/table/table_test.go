package table

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

var bondNames = []string{"C-H", "C-H", "C-H", "C-C", "C=O", "C-O", "O-H"}

func newTestStore(t *testing.T, name string) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestTable(t *testing.T, s *store.Store, name string, opts ...Option) *Table {
	t.Helper()
	tbl, err := New(s, name, opts...)
	if err != nil {
		t.Fatalf("failed to create table handle: %v", err)
	}
	return tbl
}

// newBondTable builds the bond table of a small molecule: the atom pair i, j
// and the bond order of every bond.
func newBondTable(t *testing.T, s *store.Store, name string) *Table {
	t.Helper()
	ctx := context.Background()
	tbl := newTestTable(t, s, name)

	for _, attr := range []string{"i", "j", "bondorder"} {
		if err := tbl.AddAttribute(ctx, attr, WithType(types.TypeInt)); err != nil {
			t.Fatalf("add attribute %s: %v", attr, err)
		}
	}
	err := tbl.Append(ctx, map[string]any{
		"i":         []int{1, 1, 1, 1, 5, 5, 7},
		"j":         []int{2, 3, 4, 5, 6, 7, 8},
		"bondorder": []int{1, 1, 1, 1, 1, 2, 1},
	})
	if err != nil {
		t.Fatalf("append bonds: %v", err)
	}
	return tbl
}

func mustGet(t *testing.T, tbl *Table, name string) []any {
	t.Helper()
	values, err := tbl.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return values
}

func ints(values ...int64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func TestNew_RejectsInvalidName(t *testing.T) {
	s := newTestStore(t, "new.db")
	for _, name := range []string{"", "1bond", "bond table", "sqlite_master", "a;DROP"} {
		if _, err := New(s, name); !errors.Is(err, molerrors.ErrInvalidIdentifier) {
			t.Errorf("New(%q): expected ErrInvalidIdentifier, got %v", name, err)
		}
	}
}

func TestTable_AddAttributeCreatesTable(t *testing.T) {
	s := newTestStore(t, "create.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	exists, err := tbl.Exists(ctx)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("table should not exist before the first attribute")
	}
	if n, _ := tbl.Len(ctx); n != 0 {
		t.Errorf("len: got %d, want 0", n)
	}
	if n, _ := tbl.NRows(ctx); n != 0 {
		t.Errorf("nrows: got %d, want 0", n)
	}

	if err := tbl.AddAttribute(ctx, "x"); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	names, err := tbl.Names(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"x"}) {
		t.Errorf("names: got %v, want [x]", names)
	}
	def, err := tbl.Attribute(ctx, "x")
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if def.Type != types.TypeFloat {
		t.Errorf("default type: got %s, want float", def.Type)
	}
	if ok, _ := tbl.Contains(ctx, "x"); !ok {
		t.Error("expected table to contain x")
	}
	if ok, _ := tbl.Contains(ctx, "y"); ok {
		t.Error("did not expect table to contain y")
	}
}

func TestTable_BondTable(t *testing.T) {
	s := newTestStore(t, "bond.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	if n, _ := tbl.NRows(ctx); n != 7 {
		t.Errorf("nrows: got %d, want 7", n)
	}
	if n, _ := tbl.Len(ctx); n != 3 {
		t.Errorf("len: got %d, want 3", n)
	}
	if got := mustGet(t, tbl, "bondorder"); !reflect.DeepEqual(got, ints(1, 1, 1, 1, 1, 2, 1)) {
		t.Errorf("bondorder: got %v", got)
	}

	ids, err := tbl.RowIDs(ctx)
	if err != nil {
		t.Fatalf("rowids: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2, 3, 4, 5, 6, 7}) {
		t.Errorf("rowids: got %v", ids)
	}

	want := "   i  j  bondorder\n" +
		"1  1  2          1\n" +
		"2  1  3          1\n" +
		"3  1  4          1\n" +
		"4  1  5          1\n" +
		"5  5  6          1\n" +
		"6  5  7          2\n" +
		"7  7  8          1"
	got, err := tbl.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != want {
		t.Errorf("render:\ngot\n%s\nwant\n%s", got, want)
	}
}

func TestTable_AddAttributeWithValues(t *testing.T) {
	s := newTestStore(t, "values.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	if err := tbl.AddAttribute(ctx, "name", WithType(types.TypeText), WithValues(bondNames)); err != nil {
		t.Fatalf("add name: %v", err)
	}
	got := mustGet(t, tbl, "name")
	for i, want := range bondNames {
		if got[i] != want {
			t.Errorf("name[%d]: got %v, want %q", i, got[i], want)
		}
	}

	if err := tbl.AddAttribute(ctx, "length", WithValues(1.09)); err != nil {
		t.Fatalf("add length: %v", err)
	}
	for i, v := range mustGet(t, tbl, "length") {
		if v != 1.09 {
			t.Errorf("length[%d]: got %v, want 1.09", i, v)
		}
	}

	snap, err := tbl.ToSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(snap.Columns, []string{"i", "j", "bondorder", "name", "length"}) {
		t.Errorf("snapshot columns: got %v", snap.Columns)
	}
	col, ok := snap.Column("name")
	if !ok || len(col) != 7 || col[4] != "C=O" {
		t.Errorf("snapshot name column: got %v", col)
	}
}

func TestTable_AddAttributeErrors(t *testing.T) {
	s := newTestStore(t, "adderr.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	tests := []struct {
		name string
		attr string
		opts []AttributeOption
		want error
	}{
		{"invalid identifier", "bond order", nil, molerrors.ErrInvalidIdentifier},
		{"reserved rowid", "rowid", nil, molerrors.ErrInvalidIdentifier},
		{"duplicate", "bondorder", nil, molerrors.ErrDuplicateAttribute},
		{"primary key on existing table", "id", []AttributeOption{PrimaryKey(), WithType(types.TypeInt)}, molerrors.ErrInvalidPrimaryKey},
		{"not null without default", "charge", []AttributeOption{NotNull()}, molerrors.ErrMissingDefault},
		{"unknown type", "charge", []AttributeOption{WithType("complex")}, molerrors.ErrInvalidType},
		{"unsupported default", "charge", []AttributeOption{WithDefault(struct{}{})}, molerrors.ErrInvalidType},
		{"bad reference", "atom", []AttributeOption{References("atom(id")}, molerrors.ErrInvalidIdentifier},
		{"too few values", "charge", []AttributeOption{WithValues([]float64{0.1, 0.2})}, molerrors.ErrValueCountMismatch},
		{"too many values", "charge", []AttributeOption{WithValues(make([]float64, 8))}, molerrors.ErrValueCountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tbl.AddAttribute(ctx, tt.attr, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	names, err := tbl.Names(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"i", "j", "bondorder"}) {
		t.Errorf("failed additions changed the schema: %v", names)
	}
}

func TestTable_AddAttributeDuplicateWithinNewTable(t *testing.T) {
	s := newTestStore(t, "dupnew.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	if err := tbl.AddAttribute(ctx, "x"); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "x", WithType(types.TypeText)); !errors.Is(err, molerrors.ErrDuplicateAttribute) {
		t.Errorf("expected ErrDuplicateAttribute, got %v", err)
	}
}

func TestTable_PrimaryKeyMustBeInt(t *testing.T) {
	s := newTestStore(t, "pktype.db")
	tbl := newTestTable(t, s, "atom")

	err := tbl.AddAttribute(context.Background(), "id", PrimaryKey(), WithType(types.TypeText))
	if !errors.Is(err, molerrors.ErrInvalidPrimaryKey) {
		t.Errorf("expected ErrInvalidPrimaryKey, got %v", err)
	}
}

func TestTable_UniqueIndexFailureLeavesTableUnchanged(t *testing.T) {
	s := newTestStore(t, "unique.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	err := tbl.AddAttribute(ctx, "label", WithType(types.TypeText), WithDefault("x"), Indexed(types.IndexUnique))
	if !errors.Is(err, molerrors.ErrStoreExecution) {
		t.Fatalf("expected ErrStoreExecution, got %v", err)
	}
	if ok, _ := tbl.Contains(ctx, "label"); ok {
		t.Error("label must not exist after the index failed")
	}

	err = tbl.AddAttribute(ctx, "label", WithType(types.TypeText), Indexed(types.IndexUnique),
		WithValues([]string{"a", "b", "c", "d", "e", "f", "g"}))
	if err != nil {
		t.Fatalf("add unique label: %v", err)
	}
	def, err := tbl.Attribute(ctx, "label")
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if def.Index != types.IndexUnique {
		t.Errorf("index: got %s, want unique", def.Index)
	}
}

func TestTable_Attributes(t *testing.T) {
	s := newTestStore(t, "attrs.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	steps := []struct {
		name string
		opts []AttributeOption
	}{
		{"id", []AttributeOption{PrimaryKey(), WithType(types.TypeInt)}},
		{"symbol", []AttributeOption{WithType(types.TypeText), WithDefault("C"), NotNull(), Indexed(types.IndexPlain)}},
		{"charge", []AttributeOption{WithDefault(0.5)}},
		{"residue", []AttributeOption{WithType(types.TypeInt), References("residue(id)")}},
		{"coords", []AttributeOption{WithType(types.TypeBlob), WithDefault([]byte{0x01, 0xff})}},
	}
	for _, st := range steps {
		if err := tbl.AddAttribute(ctx, st.name, st.opts...); err != nil {
			t.Fatalf("add %s: %v", st.name, err)
		}
	}

	defs, err := tbl.Attributes(ctx)
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	want := []types.AttributeDef{
		{Name: "id", Type: types.TypeInt, NotNull: true, PrimaryKey: true},
		{Name: "symbol", Type: types.TypeText, NotNull: true, Default: "C", Index: types.IndexPlain},
		{Name: "charge", Type: types.TypeFloat, Default: 0.5},
		{Name: "residue", Type: types.TypeInt, References: "residue(id)"},
		{Name: "coords", Type: types.TypeBlob, Default: []byte{0x01, 0xff}},
	}
	if !reflect.DeepEqual(defs, want) {
		t.Errorf("attributes:\ngot  %+v\nwant %+v", defs, want)
	}
}

func TestTable_PrimaryKeyIsRowID(t *testing.T) {
	s := newTestStore(t, "pk.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	if err := tbl.AddAttribute(ctx, "id", PrimaryKey(), WithType(types.TypeInt)); err != nil {
		t.Fatalf("add id: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "x", WithDefault(0.0)); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tbl.Append(ctx, map[string]any{"id": []int{10, 20}, "x": 1.5}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.Append(ctx, map[string]any{"x": 2.5}); err != nil {
		t.Fatalf("append without id: %v", err)
	}

	ids, err := tbl.RowIDs(ctx)
	if err != nil {
		t.Fatalf("rowids: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{10, 20, 21}) {
		t.Errorf("rowids: got %v, want [10 20 21]", ids)
	}

	if err := tbl.Append(ctx, map[string]any{"id": 10}); !errors.Is(err, molerrors.ErrStoreExecution) {
		t.Errorf("duplicate key: expected ErrStoreExecution, got %v", err)
	}
}

func TestTable_AppendBroadcasting(t *testing.T) {
	s := newTestStore(t, "append.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	if err := tbl.AddAttribute(ctx, "x", WithDefault(0.0)); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "symbol", WithType(types.TypeText), WithDefault("C")); err != nil {
		t.Fatalf("add symbol: %v", err)
	}

	// a sequence fixes the row count, the scalar is broadcast
	if err := tbl.Append(ctx, map[string]any{"x": []float64{1, 2, 3}, "symbol": "O"}); err != nil {
		t.Fatalf("append 3: %v", err)
	}
	// a 1-element sequence is broadcast like a scalar
	if err := tbl.Append(ctx, map[string]any{"x": []float64{4}, "symbol": []string{"N", "S"}}); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	// defaults fill what is not supplied
	if err := tbl.Append(ctx, map[string]any{"symbol": "H"}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	// no values: one all-default row
	if err := tbl.Append(ctx, nil); err != nil {
		t.Fatalf("append default: %v", err)
	}

	if got, want := mustGet(t, tbl, "x"), []any{1.0, 2.0, 3.0, 4.0, 4.0, 0.0, 0.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("x: got %v, want %v", got, want)
	}
	if got, want := mustGet(t, tbl, "symbol"), []any{"O", "O", "O", "N", "S", "H", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("symbol: got %v, want %v", got, want)
	}
}

func TestTable_AppendErrors(t *testing.T) {
	s := newTestStore(t, "appenderr.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	err := tbl.Append(ctx, map[string]any{"i": []int{1, 2}, "j": []int{3, 4, 5}, "bondorder": 1})
	if !errors.Is(err, molerrors.ErrValueCountMismatch) {
		t.Fatalf("expected ErrValueCountMismatch, got %v", err)
	}
	var merr *molerrors.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if merr.Details["attribute"] != "j" || merr.Details["length"] != 3 || merr.Details["expected"] != 2 {
		t.Errorf("details: got %v", merr.Details)
	}

	if err := tbl.Append(ctx, map[string]any{"i": 1, "j": 2}); !errors.Is(err, molerrors.ErrMissingDefault) {
		t.Errorf("expected ErrMissingDefault, got %v", err)
	}
	if err := tbl.Append(ctx, map[string]any{"i": 1, "j": 2, "bondorder": 1, "angle": 1.0}); !errors.Is(err, molerrors.ErrUnknownAttribute) {
		t.Errorf("expected ErrUnknownAttribute, got %v", err)
	}

	if n, _ := tbl.NRows(ctx); n != 7 {
		t.Errorf("failed appends changed the row count: %d", n)
	}

	empty := newTestTable(t, s, "angle")
	if err := empty.Append(ctx, map[string]any{"a": 1}); !errors.Is(err, molerrors.ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestTable_Set(t *testing.T) {
	s := newTestStore(t, "set.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	if err := tbl.Set(ctx, "bondorder", 2); err != nil {
		t.Fatalf("set scalar: %v", err)
	}
	if got := mustGet(t, tbl, "bondorder"); !reflect.DeepEqual(got, ints(2, 2, 2, 2, 2, 2, 2)) {
		t.Errorf("after scalar set: %v", got)
	}

	if err := tbl.Set(ctx, "bondorder", []int{3}); err != nil {
		t.Fatalf("set single: %v", err)
	}
	if got := mustGet(t, tbl, "bondorder"); !reflect.DeepEqual(got, ints(3, 3, 3, 3, 3, 3, 3)) {
		t.Errorf("after single set: %v", got)
	}

	if err := tbl.Set(ctx, "bondorder", []int64{1, 1, 1, 1, 1, 2, 1}); err != nil {
		t.Fatalf("set sequence: %v", err)
	}
	if got := mustGet(t, tbl, "bondorder"); !reflect.DeepEqual(got, ints(1, 1, 1, 1, 1, 2, 1)) {
		t.Errorf("after sequence set: %v", got)
	}

	if err := tbl.Set(ctx, "bondorder", []int{1, 2}); !errors.Is(err, molerrors.ErrValueCountMismatch) {
		t.Errorf("expected ErrValueCountMismatch, got %v", err)
	}
	if err := tbl.Set(ctx, "angle", 1.0); !errors.Is(err, molerrors.ErrUnknownAttribute) {
		t.Errorf("expected ErrUnknownAttribute, got %v", err)
	}
	if _, err := tbl.Get(ctx, "angle"); !errors.Is(err, molerrors.ErrUnknownAttribute) {
		t.Errorf("expected ErrUnknownAttribute from Get, got %v", err)
	}
}

func TestTable_SetFollowsRowOrderAfterDelete(t *testing.T) {
	s := newTestStore(t, "setgap.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	if err := tbl.DeleteRows(ctx, 2, 4); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tbl.Set(ctx, "bondorder", []int{10, 20, 30, 40, 50}); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap, err := tbl.ToSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	row, ok := snap.Row(5)
	if !ok {
		t.Fatal("row 5 missing")
	}
	if row.Values[2] != int64(30) {
		t.Errorf("row 5 bondorder: got %v, want 30", row.Values[2])
	}
}

func TestTable_RemoveAttribute(t *testing.T) {
	s := newTestStore(t, "remove.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "bond")

	if err := tbl.AddAttribute(ctx, "i", WithType(types.TypeInt), WithDefault(0), Indexed(types.IndexPlain)); err != nil {
		t.Fatalf("add i: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "j", WithType(types.TypeInt), WithDefault(0)); err != nil {
		t.Fatalf("add j: %v", err)
	}
	if err := tbl.Append(ctx, map[string]any{"i": []int{1, 1, 1, 5}, "j": []int{2, 3, 4, 6}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "name", WithType(types.TypeText), WithDefault("X"),
		WithValues([]string{"C-H", "C-H", "C-H", "C-C"})); err != nil {
		t.Fatalf("add name: %v", err)
	}
	if err := tbl.DeleteRows(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := tbl.RemoveAttribute(ctx, "name"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	names, _ := tbl.Names(ctx)
	if !reflect.DeepEqual(names, []string{"i", "j"}) {
		t.Errorf("names: got %v, want [i j]", names)
	}
	ids, _ := tbl.RowIDs(ctx)
	if !reflect.DeepEqual(ids, []int64{1, 3, 4}) {
		t.Errorf("row identifiers not preserved: got %v", ids)
	}
	if got := mustGet(t, tbl, "j"); !reflect.DeepEqual(got, ints(2, 4, 6)) {
		t.Errorf("j: got %v", got)
	}

	i, err := tbl.Attribute(ctx, "i")
	if err != nil {
		t.Fatalf("attribute i: %v", err)
	}
	if i.Index != types.IndexPlain || i.Default != int64(0) || i.Type != types.TypeInt {
		t.Errorf("i definition not preserved: %+v", i)
	}

	// re-adding yields defaults, not the old values
	if err := tbl.AddAttribute(ctx, "name", WithType(types.TypeText), WithDefault("X")); err != nil {
		t.Fatalf("re-add name: %v", err)
	}
	if got := mustGet(t, tbl, "name"); !reflect.DeepEqual(got, []any{"X", "X", "X"}) {
		t.Errorf("re-added name: got %v", got)
	}

	if err := tbl.RemoveAttribute(ctx, "angle"); !errors.Is(err, molerrors.ErrUnknownAttribute) {
		t.Errorf("expected ErrUnknownAttribute, got %v", err)
	}
}

func TestTable_RemoveLastAttributeDropsTable(t *testing.T) {
	s := newTestStore(t, "removelast.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	if err := tbl.AddAttribute(ctx, "x", WithDefault(1.0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tbl.Append(ctx, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.RemoveAttribute(ctx, "x"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := tbl.Exists(ctx); ok {
		t.Error("table should be gone after removing its last attribute")
	}
	if n, _ := tbl.NRows(ctx); n != 0 {
		t.Errorf("nrows: got %d, want 0", n)
	}
}

func TestTable_RemovePrimaryKeyKeepsRowIDs(t *testing.T) {
	s := newTestStore(t, "removepk.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom")

	if err := tbl.AddAttribute(ctx, "id", PrimaryKey(), WithType(types.TypeInt)); err != nil {
		t.Fatalf("add id: %v", err)
	}
	if err := tbl.AddAttribute(ctx, "x", WithDefault(0.0)); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tbl.Append(ctx, map[string]any{"id": []int{7, 9}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.RemoveAttribute(ctx, "id"); err != nil {
		t.Fatalf("remove id: %v", err)
	}
	ids, _ := tbl.RowIDs(ctx)
	if !reflect.DeepEqual(ids, []int64{7, 9}) {
		t.Errorf("rowids: got %v, want [7 9]", ids)
	}
}

func TestTable_DiffAgainstCopy(t *testing.T) {
	s := newTestStore(t, "diffcopy.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	before, err := tbl.CopyTo(ctx, s, "bond_before")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if eq, err := tbl.Equal(ctx, before); err != nil || !eq {
		t.Fatalf("copy should equal source: eq=%v err=%v", eq, err)
	}

	order := mustGet(t, tbl, "bondorder")
	order[5] = int64(3)
	if err := tbl.Set(ctx, "bondorder", order); err != nil {
		t.Fatalf("set: %v", err)
	}

	if eq, _ := tbl.Equal(ctx, before); eq {
		t.Error("tables should differ after the change")
	}

	report, err := tbl.Diff(ctx, before)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	want := map[int64][]types.Change{6: {{Column: "bondorder", Old: int64(2), New: int64(3)}}}
	if !reflect.DeepEqual(report.Changed, want) {
		t.Errorf("changed: got %v, want %v", report.Changed, want)
	}
	if len(report.Added) != 0 || len(report.Removed) != 0 || len(report.ColumnsAdded) != 0 || len(report.ColumnsRemoved) != 0 {
		t.Errorf("unexpected differences: %+v", report)
	}
}

func TestTable_CrossStoreDiff(t *testing.T) {
	ctx := context.Background()
	sa := newTestStore(t, "a.db")
	sb := newTestStore(t, "b.db")
	a := newBondTable(t, sa, "bond")
	b := newBondTable(t, sb, "bond")

	if eq, err := a.Equal(ctx, b); err != nil || !eq {
		t.Fatalf("identical tables: eq=%v err=%v", eq, err)
	}
	if eq, err := b.Equal(ctx, a); err != nil || !eq {
		t.Fatalf("identical tables (reversed): eq=%v err=%v", eq, err)
	}

	if err := a.Set(ctx, "bondorder", []int{1, 1, 1, 1, 1, 3, 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := a.Append(ctx, map[string]any{"i": 7, "j": 9, "bondorder": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := a.DeleteRows(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	report, err := a.Diff(ctx, b)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !reflect.DeepEqual(report.ChangedRowIDs(), []int64{6}) {
		t.Errorf("changed rows: got %v", report.ChangedRowIDs())
	}
	if c := report.Changed[6]; len(c) != 1 || c[0].Old != int64(2) || c[0].New != int64(3) {
		t.Errorf("change: got %+v", c)
	}
	if !reflect.DeepEqual(report.Added, map[int64][]any{8: ints(7, 9, 1)}) {
		t.Errorf("added: got %v", report.Added)
	}
	if !reflect.DeepEqual(report.Removed, map[int64][]any{1: ints(1, 2, 1)}) {
		t.Errorf("removed: got %v", report.Removed)
	}

	reverse, err := b.Diff(ctx, a)
	if err != nil {
		t.Fatalf("reverse diff: %v", err)
	}
	if c := reverse.Changed[6]; len(c) != 1 || c[0].Old != int64(3) || c[0].New != int64(2) {
		t.Errorf("reverse change: got %+v", c)
	}
	if !reflect.DeepEqual(reverse.AddedRowIDs(), []int64{1}) || !reflect.DeepEqual(reverse.RemovedRowIDs(), []int64{8}) {
		t.Errorf("reverse added/removed: %v / %v", reverse.AddedRowIDs(), reverse.RemovedRowIDs())
	}

	if sa.Attached() || sb.Attached() {
		t.Error("attach slot must be free after comparisons")
	}
}

func TestTable_DiffColumns(t *testing.T) {
	ctx := context.Background()
	sa := newTestStore(t, "a.db")
	sb := newTestStore(t, "b.db")
	a := newBondTable(t, sa, "bond")
	b := newBondTable(t, sb, "bond")

	if err := a.AddAttribute(ctx, "name", WithType(types.TypeText), WithValues(bondNames)); err != nil {
		t.Fatalf("add name: %v", err)
	}
	if err := b.AddAttribute(ctx, "length", WithDefault(1.0), WithValues(1.0)); err != nil {
		t.Fatalf("add length: %v", err)
	}

	report, err := a.Diff(ctx, b)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !reflect.DeepEqual(report.ColumnsAdded, []string{"name"}) {
		t.Errorf("columns added: got %v", report.ColumnsAdded)
	}
	if !reflect.DeepEqual(report.ColumnsRemoved, []string{"length"}) {
		t.Errorf("columns removed: got %v", report.ColumnsRemoved)
	}
	if len(report.Changed) != 0 {
		t.Errorf("shared attributes are equal, got changes %v", report.Changed)
	}
	if eq, _ := a.Equal(ctx, b); eq {
		t.Error("tables with different attributes must not be equal")
	}
}

func TestTable_DiffWithoutSharedAttributes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "disjoint.db")
	a := newTestTable(t, s, "a")
	b := newTestTable(t, s, "b")

	if err := a.AddAttribute(ctx, "x", WithType(types.TypeInt)); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := a.Append(ctx, map[string]any{"x": []int{1, 2, 3}}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := b.AddAttribute(ctx, "y", WithType(types.TypeInt)); err != nil {
		t.Fatalf("add y: %v", err)
	}
	if err := b.Append(ctx, map[string]any{"y": 9}); err != nil {
		t.Fatalf("append b: %v", err)
	}

	report, err := a.Diff(ctx, b)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	want := &types.DiffReport{ColumnsAdded: []string{"x"}, ColumnsRemoved: []string{"y"}}
	if !reflect.DeepEqual(report, want) {
		t.Errorf("got %+v, want %+v", report, want)
	}

	missing := newTestTable(t, s, "missing")
	report, err = a.Diff(ctx, missing)
	if err != nil {
		t.Fatalf("diff against missing table: %v", err)
	}
	want = &types.DiffReport{ColumnsAdded: []string{"x"}}
	if !reflect.DeepEqual(report, want) {
		t.Errorf("against missing table: got %+v, want %+v", report, want)
	}
}

func TestTable_EmptySequenceRejected(t *testing.T) {
	s := newTestStore(t, "emptyseq.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")

	err := tbl.Append(ctx, map[string]any{"i": []int{}, "j": 2, "bondorder": 1})
	if !errors.Is(err, molerrors.ErrValueCountMismatch) {
		t.Fatalf("append: expected ErrValueCountMismatch, got %v", err)
	}
	var merr *molerrors.Error
	if !errors.As(err, &merr) || merr.Details["attribute"] != "i" || merr.Details["length"] != 0 {
		t.Errorf("append details: got %v", err)
	}

	if err := tbl.Set(ctx, "bondorder", []int64{}); !errors.Is(err, molerrors.ErrValueCountMismatch) {
		t.Errorf("set: expected ErrValueCountMismatch, got %v", err)
	}
	if err := tbl.AddAttribute(ctx, "length", WithValues([]float64{})); !errors.Is(err, molerrors.ErrValueCountMismatch) {
		t.Errorf("add attribute: expected ErrValueCountMismatch, got %v", err)
	}
	if ok, _ := tbl.Contains(ctx, "length"); ok {
		t.Error("rejected attribute was added")
	}
	if n, _ := tbl.NRows(ctx); n != 7 {
		t.Errorf("row count changed: %d", n)
	}
	if got := mustGet(t, tbl, "bondorder"); !reflect.DeepEqual(got, ints(1, 1, 1, 1, 1, 2, 1)) {
		t.Errorf("bondorder changed: %v", got)
	}

	empty := newTestTable(t, s, "empty")
	if err := empty.AddAttribute(ctx, "x", WithValues([]float64{})); err != nil {
		t.Fatalf("empty values on a new table: %v", err)
	}
	if err := empty.Set(ctx, "x", []float64{}); err != nil {
		t.Errorf("empty values on an empty table: %v", err)
	}
}

func TestTable_EqualIgnoresAttributeOrder(t *testing.T) {
	ctx := context.Background()
	sa := newTestStore(t, "a.db")
	sb := newTestStore(t, "b.db")
	a := newTestTable(t, sa, "pair")
	b := newTestTable(t, sb, "pair")

	for _, step := range []struct {
		tbl   *Table
		order []string
	}{{a, []string{"i", "j"}}, {b, []string{"j", "i"}}} {
		for _, name := range step.order {
			if err := step.tbl.AddAttribute(ctx, name, WithType(types.TypeInt), WithDefault(0)); err != nil {
				t.Fatalf("add %s: %v", name, err)
			}
		}
		if err := step.tbl.Append(ctx, map[string]any{"i": []int{1, 2}, "j": []int{3, 4}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if eq, err := a.Equal(ctx, b); err != nil || !eq {
		t.Errorf("eq=%v err=%v, want equal", eq, err)
	}
	report, err := a.Diff(ctx, b)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !report.IsEmpty() {
		t.Errorf("diff of equal tables: %+v", report)
	}
}

func TestTable_EqualRowCountShortCircuit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "count.db")
	a := newBondTable(t, s, "a")
	b := newBondTable(t, s, "b")

	if err := b.DeleteRows(ctx, 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if eq, err := a.Equal(ctx, b); err != nil || eq {
		t.Errorf("eq=%v err=%v, want not equal", eq, err)
	}
}

func TestTable_CompareInsideScopeFails(t *testing.T) {
	ctx := context.Background()
	sa := newTestStore(t, "a.db")
	sb := newTestStore(t, "b.db")
	a := newBondTable(t, sa, "bond")
	b := newBondTable(t, sb, "bond")

	err := a.Scope(ctx, func(ctx context.Context) error {
		_, err := a.Diff(ctx, b)
		return err
	})
	if !errors.Is(err, molerrors.ErrStoreExecution) {
		t.Errorf("expected ErrStoreExecution, got %v", err)
	}
	if sa.Attached() {
		t.Error("attach slot must stay free")
	}
}

func TestTable_ScopeRollsBack(t *testing.T) {
	s := newTestStore(t, "scope.db")
	ctx := context.Background()
	tbl := newBondTable(t, s, "bond")
	boom := errors.New("boom")

	err := tbl.Scope(ctx, func(ctx context.Context) error {
		if err := tbl.Append(ctx, map[string]any{"i": 8, "j": 9, "bondorder": 1}); err != nil {
			return err
		}
		if err := tbl.AddAttribute(ctx, "name", WithType(types.TypeText)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := tbl.NRows(ctx); n != 7 {
		t.Errorf("nrows: got %d, want 7", n)
	}
	if ok, _ := tbl.Contains(ctx, "name"); ok {
		t.Error("attribute added in a rolled back scope must not exist")
	}
}

func TestTable_CopyToOtherStore(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t, "src.db")
	dst := newTestStore(t, "dst.db")
	tbl := newBondTable(t, src, "bond")
	if err := tbl.DeleteRows(ctx, 3); err != nil {
		t.Fatalf("delete: %v", err)
	}

	cp, err := tbl.CopyTo(ctx, dst, "bond")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	ids, _ := cp.RowIDs(ctx)
	if !reflect.DeepEqual(ids, []int64{1, 2, 4, 5, 6, 7}) {
		t.Errorf("rowids: got %v", ids)
	}
	if eq, err := cp.Equal(ctx, tbl); err != nil || !eq {
		t.Errorf("copy: eq=%v err=%v", eq, err)
	}

	if _, err := tbl.CopyTo(ctx, dst, "bond"); !errors.Is(err, molerrors.ErrTableExists) {
		t.Errorf("expected ErrTableExists, got %v", err)
	}
}

func TestTable_SchemaVersions(t *testing.T) {
	s := newTestStore(t, "history.db")
	ctx := context.Background()
	tbl := newTestTable(t, s, "atom", WithSchemaHistory(true))

	for _, name := range []string{"x", "y"} {
		if err := tbl.AddAttribute(ctx, name, WithDefault(0.0)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if err := tbl.RemoveAttribute(ctx, "x"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	versions, err := tbl.SchemaVersions(ctx)
	if err != nil {
		t.Fatalf("schema versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("versions: got %d, want 3", len(versions))
	}
	for i, v := range versions {
		if v.Version != i+1 {
			t.Errorf("version %d: got number %d", i, v.Version)
		}
	}
	if last := versions[2].Attributes; len(last) != 1 || last[0].Name != "y" {
		t.Errorf("latest attributes: got %+v", last)
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"atom"}) {
		t.Errorf("history table must be hidden: %v", tables)
	}

	untracked := newTestTable(t, s, "bond")
	if vs, err := untracked.SchemaVersions(ctx); err != nil || len(vs) != 0 {
		t.Errorf("untracked table: %v, %v", vs, err)
	}
}

func TestLengthOf(t *testing.T) {
	tests := []struct {
		value any
		want  int
	}{
		{nil, 0},
		{1, 0},
		{1.5, 0},
		{"C-H", 0},
		{[]byte("blob"), 0},
		{[]int{}, 0},
		{[]int{1}, 1},
		{[]string{"a", "b", "c"}, 3},
		{[2]float64{1, 2}, 2},
		{[]any{1, "a"}, 2},
	}
	for _, tt := range tests {
		if got := LengthOf(tt.value); got != tt.want {
			t.Errorf("LengthOf(%#v): got %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		value any
		sql   string
		back  any
	}{
		{nil, "NULL", nil},
		{7, "7", int64(7)},
		{int64(-3), "-3", int64(-3)},
		{1.5, "1.5", 1.5},
		{2.0, "2.0", 2.0},
		{true, "1", int64(1)},
		{"it's", "'it''s'", "it's"},
		{[]byte{0xca, 0xfe}, "X'CAFE'", []byte{0xca, 0xfe}},
	}
	for _, tt := range tests {
		got, err := renderLiteral(tt.value)
		if err != nil {
			t.Fatalf("render %v: %v", tt.value, err)
		}
		if got != tt.sql {
			t.Errorf("render %v: got %s, want %s", tt.value, got, tt.sql)
		}
		if back := parseLiteral(got); !reflect.DeepEqual(back, tt.back) {
			t.Errorf("parse %s: got %#v, want %#v", got, back, tt.back)
		}
	}
	if parseLiteral("CURRENT_TIMESTAMP") != "CURRENT_TIMESTAMP" {
		t.Error("expressions should be returned unchanged")
	}
}
