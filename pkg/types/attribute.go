// Package types provides the public value types of molsystem tables.
package types

import (
	"fmt"
	"strings"
)

// AttributeType is the storage type of an attribute (column).
type AttributeType string

const (
	TypeInt   AttributeType = "int"
	TypeFloat AttributeType = "float"
	TypeText  AttributeType = "text"
	TypeBlob  AttributeType = "blob"
)

// SQLType returns the declared SQLite type used in DDL.
func (t AttributeType) SQLType() string {
	switch t {
	case TypeInt:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	default:
		return ""
	}
}

// Valid reports whether t is one of the four attribute types.
func (t AttributeType) Valid() bool {
	return t.SQLType() != ""
}

// ParseAttributeType maps a user-facing name or a declared SQLite column type
// to an AttributeType. Declared types follow SQLite's affinity rules, so
// "VARCHAR(20)" is text and "DOUBLE" is float. The short names "str" and
// "byte" are accepted as aliases.
func ParseAttributeType(s string) (AttributeType, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch u {
	case "INT", "INTEGER":
		return TypeInt, nil
	case "FLOAT", "REAL":
		return TypeFloat, nil
	case "TEXT", "STR", "STRING":
		return TypeText, nil
	case "BLOB", "BYTE", "BYTES":
		return TypeBlob, nil
	}

	switch {
	case u == "":
		return "", fmt.Errorf("empty attribute type")
	case strings.Contains(u, "INT"):
		return TypeInt, nil
	case strings.Contains(u, "CHAR"), strings.Contains(u, "CLOB"), strings.Contains(u, "TEXT"):
		return TypeText, nil
	case strings.Contains(u, "BLOB"):
		return TypeBlob, nil
	case strings.Contains(u, "REAL"), strings.Contains(u, "FLOA"), strings.Contains(u, "DOUB"):
		return TypeFloat, nil
	}
	return "", fmt.Errorf("unknown attribute type %q", s)
}

// IndexKind says whether, and how, an attribute is indexed.
type IndexKind int

const (
	IndexNone IndexKind = iota
	IndexPlain
	IndexUnique
)

func (k IndexKind) String() string {
	switch k {
	case IndexPlain:
		return "index"
	case IndexUnique:
		return "unique"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k IndexKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *IndexKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*k = IndexNone
	case "index", "true":
		*k = IndexPlain
	case "unique":
		*k = IndexUnique
	default:
		return fmt.Errorf("unknown index kind %q", string(b))
	}
	return nil
}

// AttributeDef describes one attribute of a table.
//
// A primary key is always not-null. A non-primary-key attribute that is
// not-null must carry a non-nil Default.
type AttributeDef struct {
	// Name is the attribute (column) name
	Name string `json:"name" yaml:"name"`

	// Type is one of int, float, text, blob
	Type AttributeType `json:"type" yaml:"type"`

	// NotNull forbids NULL values
	NotNull bool `json:"notnull" yaml:"notnull"`

	// Default is used for rows appended without a value for this attribute
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Index is the kind of index on this attribute
	Index IndexKind `json:"index" yaml:"index"`

	// PrimaryKey marks the attribute as the table's row identifier
	PrimaryKey bool `json:"primary_key" yaml:"primary_key"`

	// References is a foreign attribute path such as "atom(id)"
	References string `json:"references,omitempty" yaml:"references,omitempty"`
}
