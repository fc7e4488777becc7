package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	molerrors "github.com/arkilian/molsystem/internal/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// reserved names alias SQLite's implicit row identifier.
var reserved = map[string]bool{
	"rowid":   true,
	"oid":     true,
	"_rowid_": true,
}

// ValidateIdentifier checks that name is safe to interpolate into SQL as a
// table, column, or index name. Parameter binding does not cover
// identifiers, so every name reaching a statement passes through here.
func ValidateIdentifier(name string) error {
	lower := strings.ToLower(name)
	switch {
	case !identPattern.MatchString(name):
		return molerrors.NewValidationError(molerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%q is not a valid identifier", name)).
			WithDetails(map[string]interface{}{"identifier": name})
	case reserved[lower]:
		return molerrors.NewValidationError(molerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%q is reserved for the row identifier", name)).
			WithDetails(map[string]interface{}{"identifier": name})
	case strings.HasPrefix(lower, "sqlite_"):
		return molerrors.NewValidationError(molerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%q uses the reserved sqlite_ prefix", name)).
			WithDetails(map[string]interface{}{"identifier": name})
	}
	return nil
}

// Quote returns name as a quoted SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualified returns schema.name, both quoted.
func Qualified(schema, name string) string {
	return Quote(schema) + "." + Quote(name)
}

// ColumnInfo is one column as reported by the store.
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	Default    *string // SQL literal text, nil when there is no default
	PrimaryKey bool
}

// ForeignKey is one REFERENCES clause of a table.
type ForeignKey struct {
	From  string
	Table string
	To    string // empty when the parent's primary key is implied
}

// IndexInfo describes an index on a table.
type IndexInfo struct {
	Name    string
	Unique  bool
	Columns []string
	SQL     string // empty for automatic indexes
}

// Existence is the outcome of a table existence check.
type Existence int

const (
	Absent Existence = iota
	Exists
)

func (e Existence) String() string {
	if e == Exists {
		return "exists"
	}
	return "absent"
}

// Exists reports whether table exists in the store.
func (s *Store) Exists(ctx context.Context, table string) (Existence, error) {
	n, err := s.QueryInt(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return Absent, err
	}
	if n > 0 {
		return Exists, nil
	}
	return Absent, nil
}

// Tables lists the user tables of the store, sorted by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	res, err := s.Query(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		  AND substr(name, 1, ?) != ?
		ORDER BY name`, len(InternalPrefix), InternalPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		names = append(names, asString(row[0]))
	}
	return names, nil
}

// Columns returns the columns of table in definition order. A table that does
// not exist has no columns.
func (s *Store) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	res, err := s.Query(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}

	cols := make([]ColumnInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		col := ColumnInfo{
			Name:       asString(row[0]),
			Type:       asString(row[1]),
			NotNull:    asInt(row[2]) != 0,
			PrimaryKey: asInt(row[4]) != 0,
		}
		if row[3] != nil {
			d := asString(row[3])
			col.Default = &d
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ForeignKeys returns the REFERENCES clauses declared on table.
func (s *Store) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	res, err := s.Query(ctx,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	fks := make([]ForeignKey, 0, len(res.Rows))
	for _, row := range res.Rows {
		fks = append(fks, ForeignKey{
			From:  asString(row[0]),
			Table: asString(row[1]),
			To:    asString(row[2]),
		})
	}
	return fks, nil
}

// Indexes returns the indexes on table with their columns.
func (s *Store) Indexes(ctx context.Context, table string) ([]IndexInfo, error) {
	res, err := s.Query(ctx, `
		SELECT il.name, il."unique", m.sql
		FROM pragma_index_list(?) AS il
		LEFT JOIN sqlite_master AS m ON m.type = 'index' AND m.name = il.name
		ORDER BY il.seq`, table)
	if err != nil {
		return nil, err
	}

	indexes := make([]IndexInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		idx := IndexInfo{
			Name:   asString(row[0]),
			Unique: asInt(row[1]) != 0,
			SQL:    asString(row[2]),
		}
		cols, err := s.Query(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, idx.Name)
		if err != nil {
			return nil, err
		}
		for _, c := range cols.Rows {
			idx.Columns = append(idx.Columns, asString(c[0]))
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if err := ValidateIdentifier(table); err != nil {
		return 0, err
	}
	return s.QueryInt(ctx, "SELECT COUNT(*) FROM "+Quote(table))
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case []byte, string:
		var n sql.NullInt64
		if err := n.Scan(asString(x)); err == nil {
			return n.Int64
		}
	}
	return 0
}
