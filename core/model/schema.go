// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Schema is the set of tables an admin works on
type Schema struct {
	tables []*Table
	byName map[string]*Table
}

// NewSchema creates a schema from tables. Table names must be unique.
func NewSchema(tables ...*Table) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Table)}
	for _, t := range tables {
		if err := s.add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(t *Table) error {
	if t == nil {
		return fmt.Errorf("nil table")
	}
	if _, ok := s.byName[t.name]; ok {
		return fmt.Errorf("duplicate table %s", t.name)
	}
	s.byName[t.name] = t
	s.tables = append(s.tables, t)
	return nil
}

// Table returns the table with the given name
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Tables returns all tables in declaration order
func (s *Schema) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// Lookup returns a deferred reference to the table name. The table does not have to
// exist yet, it is looked up when the reference is resolved.
func (s *Schema) Lookup(name string) Reference {
	return Deferred(func() (*Table, error) {
		t, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}
		return t, nil
	})
}

// Configuration is the JSON description of a schema
type Configuration struct {
	Tables []TableConfiguration `json:"tables"`
}

// TableConfiguration describes one table
type TableConfiguration struct {
	Table    string                `json:"table"`
	Readable string                `json:"readable"`
	HelpText string                `json:"help_text"`
	Columns  []ColumnConfiguration `json:"columns"`
}

// ColumnConfiguration describes one column. A column with "references" is a foreign
// key to the named table, its type defaults to integer.
type ColumnConfiguration struct {
	Name       string      `json:"name"`
	Type       ColumnType  `json:"type"`
	ArrayOf    ColumnType  `json:"array_of"`
	Length     int         `json:"length"`
	PrimaryKey bool        `json:"primary_key"`
	Null       bool        `json:"null"`
	Required   bool        `json:"required"`
	Secret     bool        `json:"secret"`
	Unique     bool        `json:"unique"`
	Default    interface{} `json:"default"`
	Choices    []Choice    `json:"choices"`
	HelpText   string      `json:"help_text"`
	References string      `json:"references"`
}

// ParseSchema creates a schema from its JSON configuration
//
// Example:
//
//	{
//	  "tables": [
//	    {
//	      "table": "movie",
//	      "columns": [
//	        {"name": "name", "type": "varchar", "length": 300, "required": true},
//	        {"name": "director", "references": "director"}
//	      ]
//	    },
//	    {
//	      "table": "director",
//	      "readable": "name",
//	      "columns": [{"name": "name", "type": "varchar"}]
//	    }
//	  ]
//	}
//
// References are deferred, a table may reference a table declared after it. A reference
// to a table which is never declared fails when it is resolved.
func ParseSchema(data []byte) (*Schema, error) {
	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse error in schema configuration: %w", err)
	}
	return config.Schema()
}

// Schema creates the schema described by the configuration
func (config Configuration) Schema() (*Schema, error) {
	s := &Schema{byName: make(map[string]*Table)}
	for _, tc := range config.Tables {
		columns := make([]*Column, 0, len(tc.Columns))
		for _, cc := range tc.Columns {
			c := &Column{
				Name:       cc.Name,
				Type:       cc.Type,
				ArrayOf:    cc.ArrayOf,
				Length:     cc.Length,
				PrimaryKey: cc.PrimaryKey,
				Null:       cc.Null,
				Required:   cc.Required,
				Secret:     cc.Secret,
				Unique:     cc.Unique,
				Default:    cc.Default,
				Choices:    cc.Choices,
				HelpText:   cc.HelpText,
			}
			if cc.References != "" {
				c.References = s.Lookup(cc.References)
				if c.Type == "" {
					c.Type = TypeInteger
				}
			}
			columns = append(columns, c)
		}
		var options []TableOption
		if tc.Readable != "" {
			options = append(options, WithReadable(tc.Readable))
		}
		if tc.HelpText != "" {
			options = append(options, WithHelpText(tc.HelpText))
		}
		t, err := NewTable(tc.Table, columns, options...)
		if err != nil {
			return nil, err
		}
		if err := s.add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}
