// Package table implements schema-flexible tables over a store.
//
// A Table is a thin handle: the store is the source of truth for every
// schema and row query, and nothing is cached between calls. Attributes can
// be added and removed at any time; values are assigned per attribute with
// broadcasting (a single value applies to every row).
package table

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// Table is a named table in a store.
type Table struct {
	store   *store.Store
	name    string
	history bool
	logger  *zap.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithSchemaHistory records a schema version each time the table's
// attribute set changes.
func WithSchemaHistory(enabled bool) Option {
	return func(t *Table) {
		t.history = enabled
	}
}

// New returns a handle on table name in s. The table does not need to exist
// yet; it is created by the first AddAttribute.
func New(s *store.Store, name string, opts ...Option) (*Table, error) {
	if s == nil {
		return nil, molerrors.NewInternalError("table: nil store", nil)
	}
	if err := store.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	t := &Table{
		store:  s,
		name:   name,
		logger: s.Logger().With(zap.String("table", name)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Store returns the store the table lives in.
func (t *Table) Store() *store.Store {
	return t.store
}

// Exists reports whether the table has been created.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	e, err := t.store.Exists(ctx, t.name)
	if err != nil {
		return false, err
	}
	return e == store.Exists, nil
}

// Names returns the attribute names in definition order.
func (t *Table) Names(ctx context.Context) ([]string, error) {
	cols, err := t.store.Columns(ctx, t.name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

// Contains reports whether the table has an attribute called name.
func (t *Table) Contains(ctx context.Context, name string) (bool, error) {
	names, err := t.Names(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of attributes.
func (t *Table) Len(ctx context.Context) (int, error) {
	names, err := t.Names(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// NRows returns the number of rows. A table that does not exist has none.
func (t *Table) NRows(ctx context.Context) (int, error) {
	ok, err := t.Exists(ctx)
	if err != nil || !ok {
		return 0, err
	}
	n, err := t.store.Count(ctx, t.name)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RowIDs returns the row identifiers in ascending order.
func (t *Table) RowIDs(ctx context.Context) ([]int64, error) {
	ok, err := t.Exists(ctx)
	if err != nil || !ok {
		return nil, err
	}
	res, err := t.store.Query(ctx, "SELECT rowid FROM "+store.Quote(t.name)+" ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(res.Rows))
	for i, row := range res.Rows {
		ids[i] = row[0].(int64)
	}
	return ids, nil
}

// Attribute returns the definition of one attribute.
func (t *Table) Attribute(ctx context.Context, name string) (types.AttributeDef, error) {
	defs, err := t.Attributes(ctx)
	if err != nil {
		return types.AttributeDef{}, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return types.AttributeDef{}, unknownAttribute(t.name, name)
}

// Attributes returns the full definition of every attribute in definition
// order, reconstructed from the store's catalog.
func (t *Table) Attributes(ctx context.Context) ([]types.AttributeDef, error) {
	cols, err := t.store.Columns(ctx, t.name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	fks, err := t.store.ForeignKeys(ctx, t.name)
	if err != nil {
		return nil, err
	}
	indexes, err := t.store.Indexes(ctx, t.name)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string, len(fks))
	for _, fk := range fks {
		refs[fk.From] = referencePath(fk.Table, fk.To)
	}
	kinds := make(map[string]types.IndexKind)
	for _, idx := range indexes {
		if idx.SQL == "" || len(idx.Columns) != 1 {
			continue
		}
		kind := types.IndexPlain
		if idx.Unique {
			kind = types.IndexUnique
		}
		if kind > kinds[idx.Columns[0]] {
			kinds[idx.Columns[0]] = kind
		}
	}

	defs := make([]types.AttributeDef, len(cols))
	for i, c := range cols {
		def := types.AttributeDef{
			Name:       c.Name,
			Type:       declaredType(c.Type),
			NotNull:    c.NotNull || c.PrimaryKey,
			Index:      kinds[c.Name],
			PrimaryKey: c.PrimaryKey,
			References: refs[c.Name],
		}
		if c.Default != nil {
			def.Default = parseLiteral(*c.Default)
		}
		defs[i] = def
	}
	return defs, nil
}

// Scope runs fn as one transaction on the table's store. Everything fn does
// through any table of the store is committed together or not at all.
func (t *Table) Scope(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.store.Scope(ctx, fn)
}

func (t *Table) String() string {
	return fmt.Sprintf("table %s in %s", t.name, t.store.Identity())
}

// declaredType maps a declared column type back to an attribute type. A
// column declared without a type has blob affinity; anything else that
// matches no rule has numeric affinity.
func declaredType(declared string) types.AttributeType {
	if declared == "" {
		return types.TypeBlob
	}
	at, err := types.ParseAttributeType(declared)
	if err != nil {
		return types.TypeFloat
	}
	return at
}

func referencePath(table, column string) string {
	if column == "" {
		return table
	}
	return table + "(" + column + ")"
}

func unknownAttribute(table, name string) error {
	return molerrors.NewRowError(molerrors.CodeUnknownAttribute,
		fmt.Sprintf("table %s has no attribute %q", table, name)).
		WithDetails(map[string]interface{}{"table": table, "attribute": name})
}
