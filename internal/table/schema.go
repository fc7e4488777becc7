package table

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// rebuildPrefix names the scratch table used while removing an attribute.
const rebuildPrefix = "_rebuild_"

var referencePattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\(([A-Za-z_][A-Za-z0-9_]*)\))?$`)

type attributeConfig struct {
	def       types.AttributeDef
	values    any
	hasValues bool
}

// AttributeOption configures AddAttribute.
type AttributeOption func(*attributeConfig)

// WithType sets the attribute type. The default is float.
func WithType(t types.AttributeType) AttributeOption {
	return func(c *attributeConfig) { c.def.Type = t }
}

// WithDefault sets the value used for rows appended without one.
func WithDefault(v any) AttributeOption {
	return func(c *attributeConfig) { c.def.Default = v }
}

// NotNull forbids NULL values. A non-null attribute needs a default.
func NotNull() AttributeOption {
	return func(c *attributeConfig) { c.def.NotNull = true }
}

// Indexed creates an index of the given kind on the attribute.
func Indexed(kind types.IndexKind) AttributeOption {
	return func(c *attributeConfig) { c.def.Index = kind }
}

// PrimaryKey makes the attribute the table's integer row identifier. Only
// the first attribute of a new table can be the primary key.
func PrimaryKey() AttributeOption {
	return func(c *attributeConfig) { c.def.PrimaryKey = true }
}

// References declares the attribute as referring to another table's
// attribute, written "table(attribute)" or "table".
func References(path string) AttributeOption {
	return func(c *attributeConfig) { c.def.References = path }
}

// WithValues assigns values to the new attribute as Set would.
func WithValues(v any) AttributeOption {
	return func(c *attributeConfig) {
		c.values = v
		c.hasValues = true
	}
}

// AddAttribute adds an attribute, creating the table if it does not exist.
// The definition, its index, and the initial values are applied as one unit:
// if any part fails the table is left as it was.
func (t *Table) AddAttribute(ctx context.Context, name string, opts ...AttributeOption) error {
	cfg := attributeConfig{def: types.AttributeDef{Name: name, Type: types.TypeFloat}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return t.addAttribute(ctx, cfg)
}

// AddAttributeDef adds an attribute from a complete definition.
func (t *Table) AddAttributeDef(ctx context.Context, def types.AttributeDef) error {
	if def.Type == "" {
		def.Type = types.TypeFloat
	}
	return t.addAttribute(ctx, attributeConfig{def: def})
}

func (t *Table) addAttribute(ctx context.Context, cfg attributeConfig) error {
	def := cfg.def
	if err := store.ValidateIdentifier(def.Name); err != nil {
		return err
	}
	if !def.Type.Valid() {
		return molerrors.NewValidationError(molerrors.CodeInvalidType,
			fmt.Sprintf("attribute %s: unknown type %q", def.Name, def.Type)).
			WithDetails(map[string]interface{}{"attribute": def.Name, "type": string(def.Type)})
	}

	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		dup, err := t.Contains(ctx, def.Name)
		if err != nil {
			return err
		}
		if dup {
			return molerrors.NewSchemaError(molerrors.CodeDuplicateAttribute,
				fmt.Sprintf("table %s already has an attribute %q", t.name, def.Name)).
				WithDetails(map[string]interface{}{"table": t.name, "attribute": def.Name})
		}
	}

	if def.PrimaryKey {
		switch {
		case exists:
			return molerrors.NewSchemaError(molerrors.CodeInvalidPrimaryKey,
				fmt.Sprintf("%s: a primary key can only be the first attribute of a new table", def.Name)).
				WithDetails(map[string]interface{}{"table": t.name, "attribute": def.Name})
		case def.Type != types.TypeInt:
			return molerrors.NewSchemaError(molerrors.CodeInvalidPrimaryKey,
				fmt.Sprintf("%s: a primary key must have type int, not %s", def.Name, def.Type)).
				WithDetails(map[string]interface{}{"table": t.name, "attribute": def.Name})
		}
		def.NotNull = true
	} else if def.NotNull && def.Default == nil {
		return molerrors.NewSchemaError(molerrors.CodeMissingDefault,
			fmt.Sprintf("%s: a not-null attribute needs a default", def.Name)).
			WithDetails(map[string]interface{}{"table": t.name, "attribute": def.Name})
	}

	column, err := columnDefinition(def)
	if err != nil {
		return err
	}

	if cfg.hasValues {
		if l := LengthOf(cfg.values); l > 1 || emptySequence(cfg.values) {
			n, err := t.NRows(ctx)
			if err != nil {
				return err
			}
			if l != n {
				return molerrors.ValueCountMismatch(def.Name, l, n)
			}
		}
	}

	err = t.store.Atomic(ctx, func(ctx context.Context) error {
		stmt := "ALTER TABLE " + store.Quote(t.name) + " ADD COLUMN " + column
		if !exists {
			stmt = "CREATE TABLE " + store.Quote(t.name) + " (" + column + ")"
		}
		if _, err := t.store.Exec(ctx, stmt); err != nil {
			return err
		}
		if def.Index != types.IndexNone && !def.PrimaryKey {
			if _, err := t.store.Exec(ctx, indexDefinition(t.name, def)); err != nil {
				return err
			}
		}
		if cfg.hasValues {
			if err := t.assign(ctx, def.Name, cfg.values); err != nil {
				return err
			}
		}
		return t.recordSchemaVersion(ctx)
	})
	if err != nil {
		return err
	}

	t.logger.Info("table: attribute added",
		zap.String("attribute", def.Name),
		zap.String("type", string(def.Type)),
		zap.Bool("created", !exists))
	return nil
}

// RemoveAttribute drops an attribute and its values. SQLite cannot drop an
// arbitrary column in place, so the table is rebuilt without it: the
// remaining attributes keep their types, defaults, indexes, references, and
// every row keeps its identifier. Removing the last attribute drops the
// table.
func (t *Table) RemoveAttribute(ctx context.Context, name string) error {
	defs, err := t.Attributes(ctx)
	if err != nil {
		return err
	}

	var keep []types.AttributeDef
	found := false
	for _, d := range defs {
		if d.Name == name {
			found = true
			continue
		}
		keep = append(keep, d)
	}
	if !found {
		return unknownAttribute(t.name, name)
	}

	stmts, err := t.rebuildScript(ctx, keep)
	if err != nil {
		return err
	}

	err = t.store.Atomic(ctx, func(ctx context.Context) error {
		for _, stmt := range stmts {
			if _, err := t.store.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return t.recordSchemaVersion(ctx)
	})
	if err != nil {
		return err
	}

	t.logger.Info("table: attribute removed",
		zap.String("attribute", name),
		zap.Int("remaining", len(keep)))
	return nil
}

// rebuildScript returns the statements that recreate the table with only
// the keep attributes.
func (t *Table) rebuildScript(ctx context.Context, keep []types.AttributeDef) ([]string, error) {
	tbl := store.Quote(t.name)
	if len(keep) == 0 {
		return []string{"DROP TABLE " + tbl}, nil
	}

	tmp := store.Quote(rebuildPrefix + t.name)
	defsSQL := make([]string, len(keep))
	cols := make([]string, len(keep))
	hasPK := false
	for i, d := range keep {
		c, err := columnDefinition(d)
		if err != nil {
			return nil, err
		}
		defsSQL[i] = c
		cols[i] = store.Quote(d.Name)
		hasPK = hasPK || d.PrimaryKey
	}

	// An INTEGER PRIMARY KEY already is the rowid.
	targets, sources := strings.Join(cols, ", "), strings.Join(cols, ", ")
	if !hasPK {
		targets, sources = "rowid, "+targets, "rowid, "+sources
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + tmp,
		"CREATE TABLE " + tmp + " (" + strings.Join(defsSQL, ", ") + ")",
		"INSERT INTO " + tmp + " (" + targets + ") SELECT " + sources + " FROM " + tbl,
	}

	indexes, err := t.store.Indexes(ctx, t.name)
	if err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(keep))
	for _, d := range keep {
		kept[d.Name] = true
	}

	stmts = append(stmts,
		"DROP TABLE "+tbl,
		"ALTER TABLE "+tmp+" RENAME TO "+tbl,
	)
	for _, idx := range indexes {
		if idx.SQL == "" || !allKept(idx.Columns, kept) {
			continue
		}
		stmts = append(stmts, idx.SQL)
	}
	return stmts, nil
}

func allKept(columns []string, kept map[string]bool) bool {
	for _, c := range columns {
		if !kept[c] {
			return false
		}
	}
	return true
}

// columnDefinition renders one attribute as a column definition.
func columnDefinition(def types.AttributeDef) (string, error) {
	var b strings.Builder
	b.WriteString(store.Quote(def.Name))
	b.WriteString(" ")
	b.WriteString(def.Type.SQLType())

	if def.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		return b.String(), nil
	}
	if def.Default != nil {
		lit, err := renderLiteral(def.Default)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	if def.NotNull {
		b.WriteString(" NOT NULL")
	}
	if def.References != "" {
		m := referencePattern.FindStringSubmatch(def.References)
		if m == nil {
			return "", molerrors.NewValidationError(molerrors.CodeInvalidIdentifier,
				fmt.Sprintf("%s: invalid reference %q", def.Name, def.References)).
				WithDetails(map[string]interface{}{"attribute": def.Name, "references": def.References})
		}
		b.WriteString(" REFERENCES ")
		b.WriteString(store.Quote(m[1]))
		if m[2] != "" {
			b.WriteString("(" + store.Quote(m[2]) + ")")
		}
	}
	return b.String(), nil
}

func indexName(table, attribute string) string {
	return "idx_" + table + "_" + attribute
}

func indexDefinition(table string, def types.AttributeDef) string {
	kind := "INDEX"
	if def.Index == types.IndexUnique {
		kind = "UNIQUE INDEX"
	}
	return "CREATE " + kind + " " + store.Quote(indexName(table, def.Name)) +
		" ON " + store.Quote(table) + " (" + store.Quote(def.Name) + ")"
}
