// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package model describes the tables an admin is generated from.

A Table is an ordered list of columns. A column which references another table is a
foreign key. References are either direct, when the referenced table is already known,
or deferred, when the referenced table is looked up on demand. Deferred references are
what a JSON configuration produces, because a table may reference a table which is
declared further down.

Tables are immutable once they are created with NewTable. They are meant to be built
once at startup and passed around explicitly, usually as part of a Schema.
*/
package model

import (
	"errors"
	"fmt"
)

// ColumnType is the SQL type of a column
type ColumnType string

// all supported column types
const (
	TypeSerial      ColumnType = "serial"
	TypeVarchar     ColumnType = "varchar"
	TypeText        ColumnType = "text"
	TypeInteger     ColumnType = "integer"
	TypeBigInt      ColumnType = "bigint"
	TypeReal        ColumnType = "real"
	TypeNumeric     ColumnType = "numeric"
	TypeBoolean     ColumnType = "boolean"
	TypeDate        ColumnType = "date"
	TypeTime        ColumnType = "time"
	TypeTimestamp   ColumnType = "timestamp"
	TypeTimestamptz ColumnType = "timestamptz"
	TypeUUID        ColumnType = "uuid"
	TypeJSON        ColumnType = "json"
	TypeArray       ColumnType = "array"
)

// Valid returns true if t is a known column type
func (t ColumnType) Valid() bool {
	switch t {
	case TypeSerial, TypeVarchar, TypeText, TypeInteger, TypeBigInt, TypeReal, TypeNumeric,
		TypeBoolean, TypeDate, TypeTime, TypeTimestamp, TypeTimestamptz, TypeUUID, TypeJSON, TypeArray:
		return true
	}
	return false
}

// IsTemporal returns true for time, timestamp and timestamptz
func (t ColumnType) IsTemporal() bool {
	return t == TypeTime || t == TypeTimestamp || t == TypeTimestamptz
}

// IsText returns true for varchar and text
func (t ColumnType) IsText() bool {
	return t == TypeVarchar || t == TypeText
}

var (
	// ErrUnknownTable is returned when a deferred reference names a table which does not exist
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnresolvedReference is returned when a deferred reference resolves to nothing
	ErrUnresolvedReference = errors.New("reference resolved to no table")
)

// Reference points from a foreign key column to the table it references.
//
// It has two variants: Direct carries the table itself, Deferred carries a function
// which looks the table up when the reference is traversed. The zero value is no
// reference at all.
type Reference struct {
	direct   *Table
	deferred func() (*Table, error)
}

// Direct returns a reference to an already known table
func Direct(table *Table) Reference {
	return Reference{direct: table}
}

// Deferred returns a reference which is resolved by calling resolve
func Deferred(resolve func() (*Table, error)) Reference {
	return Reference{deferred: resolve}
}

// IsZero returns true if this is no reference
func (r Reference) IsZero() bool {
	return r.direct == nil && r.deferred == nil
}

// IsDeferred returns true if the referenced table is looked up on demand
func (r Reference) IsDeferred() bool {
	return r.deferred != nil
}

// Resolve returns the referenced table. Errors of the deferred lookup are returned
// as they are.
func (r Reference) Resolve() (*Table, error) {
	if r.direct != nil {
		return r.direct, nil
	}
	if r.deferred == nil {
		return nil, ErrUnresolvedReference
	}
	table, err := r.deferred()
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, ErrUnresolvedReference
	}
	return table, nil
}

// Choice is one allowed value of a column with choices
type Choice struct {
	Value   interface{} `json:"value"`
	Display string      `json:"display_name"`
}

// Column describes one field of a table. Columns must not be modified once they
// are part of a table.
type Column struct {
	Name       string
	Type       ColumnType
	ArrayOf    ColumnType // element type of array columns
	Length     int        // varchar length, 0 means unlimited
	PrimaryKey bool
	Null       bool
	Required   bool
	Secret     bool
	Unique     bool
	Default    interface{}
	Choices    []Choice
	HelpText   string
	References Reference

	table *Table
}

// IsForeignKey returns true if the column references another table
func (c *Column) IsForeignKey() bool {
	return c != nil && !c.References.IsZero()
}

// Table returns the table this column belongs to
func (c *Column) Table() *Table {
	return c.table
}

// String returns table.column
func (c *Column) String() string {
	if c.table == nil {
		return c.Name
	}
	return c.table.name + "." + c.Name
}

// Table is an immutable table descriptor
type Table struct {
	name        string
	columns     []*Column
	foreignKeys []*Column
	primaryKey  *Column
	readable    *Column
	helpText    string
}

// TableOption configures optional table properties
type TableOption func(*Table) error

// WithReadable selects the column which represents a row when it is referenced
// from another table, for example the name of a director instead of its id.
func WithReadable(column string) TableOption {
	return func(t *Table) error {
		c, ok := t.Column(column)
		if !ok {
			return fmt.Errorf("readable column %s does not exist in table %s", column, t.name)
		}
		t.readable = c
		return nil
	}
}

// WithHelpText adds a description to the table
func WithHelpText(text string) TableOption {
	return func(t *Table) error {
		t.helpText = text
		return nil
	}
}

// NewTable creates a table with the given columns. If none of the columns is a primary
// key, a serial primary key "id" is added in front.
func NewTable(name string, columns []*Column, options ...TableOption) (*Table, error) {
	if name == "" {
		return nil, errors.New("table name must not be empty")
	}
	t := &Table{name: name}

	seen := map[string]bool{}
	for _, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("table %s: nil column", name)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("table %s: column without name", name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		seen[c.Name] = true
		if c.table != nil && c.table != t {
			return nil, fmt.Errorf("table %s: column %s already belongs to table %s", name, c.Name, c.table.name)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("table %s: column %s has invalid type '%s'", name, c.Name, c.Type)
		}
		if c.Type == TypeArray && !c.ArrayOf.Valid() {
			return nil, fmt.Errorf("table %s: array column %s has invalid element type '%s'", name, c.Name, c.ArrayOf)
		}
		if c.PrimaryKey {
			if t.primaryKey != nil {
				return nil, fmt.Errorf("table %s: more than one primary key", name)
			}
			t.primaryKey = c
		}
	}

	if t.primaryKey == nil {
		if seen["id"] {
			return nil, fmt.Errorf("table %s: column id exists but is not the primary key", name)
		}
		t.primaryKey = &Column{Name: "id", Type: TypeSerial, PrimaryKey: true}
		t.columns = append(t.columns, t.primaryKey)
	}
	t.columns = append(t.columns, columns...)

	// the columns are bound only after all options succeeded, a failed
	// construction leaves them untouched
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	for _, c := range t.columns {
		c.table = t
		if c.IsForeignKey() {
			t.foreignKeys = append(t.foreignKeys, c)
		}
	}
	return t, nil
}

// MustNewTable is NewTable which panics on error
func MustNewTable(name string, columns []*Column, options ...TableOption) *Table {
	t, err := NewTable(name, columns, options...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name
func (t *Table) Name() string {
	return t.name
}

// Columns returns all columns in declaration order, the primary key included
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

// ForeignKeys returns the foreign key columns in declaration order
func (t *Table) ForeignKeys() []*Column {
	return append([]*Column(nil), t.foreignKeys...)
}

// PrimaryKey returns the primary key column
func (t *Table) PrimaryKey() *Column {
	return t.primaryKey
}

// Readable returns the column which represents a row of this table
func (t *Table) Readable() *Column {
	if t.readable != nil {
		return t.readable
	}
	return t.primaryKey
}

// HelpText returns the description of the table
func (t *Table) HelpText() string {
	return t.helpText
}

// Column returns the column with the given name
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// String returns the table name
func (t *Table) String() string {
	return t.name
}
