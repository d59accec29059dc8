package admin

import (
	"strings"

	"github.com/relabs-tech/kadmin/core"
	"github.com/relabs-tech/kadmin/core/model"
)

type columnExtra struct {
	HelpText     string         `json:"help_text,omitempty"`
	Choices      []model.Choice `json:"choices,omitempty"`
	ForeignKey   bool           `json:"foreign_key"`
	To           string         `json:"to,omitempty"`
	TargetColumn string         `json:"target_column,omitempty"`
	Secret       bool           `json:"secret"`
	Unique       bool           `json:"unique"`
	Nullable     bool           `json:"nullable"`
	Widget       string         `json:"widget,omitempty"`
}

type columnSchema struct {
	Title     string        `json:"title,omitempty"`
	Type      string        `json:"type"`
	Format    string        `json:"format,omitempty"`
	MaxLength int           `json:"maxLength,omitempty"`
	Items     *columnSchema `json:"items,omitempty"`
	Default   interface{}   `json:"default,omitempty"`
	Extra     *columnExtra  `json:"extra,omitempty"`
}

type orderByExtra struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

type foreignKeyExtra struct {
	To           string `json:"to"`
	TargetColumn string `json:"target_column"`
	Readable     string `json:"readable_column"`
}

type tableExtra struct {
	VisibleColumnNames []string                   `json:"visible_column_names"`
	VisibleFilterNames []string                   `json:"visible_filter_names"`
	RichTextColumns    []string                   `json:"rich_text_columns"`
	MediaColumns       []string                   `json:"media_columns"`
	LinkColumnName     string                     `json:"link_column_name"`
	OrderBy            []orderByExtra             `json:"order_by"`
	TimeResolution     map[string]int             `json:"time_resolution"`
	ForeignKeyConfig   map[string]foreignKeyExtra `json:"foreign_key_config"`
	PrimaryKeyName     string                     `json:"primary_key_name"`
	HelpText           string                     `json:"help_text"`
	MenuGroup          string                     `json:"menu_group,omitempty"`
}

type tableSchemaResponse struct {
	Title      string                   `json:"title"`
	Type       string                   `json:"type"`
	Properties map[string]*columnSchema `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
	HelpText   string                   `json:"help_text,omitempty"`
	Extra      tableExtra               `json:"extra"`
}

// columnTitle turns a column name into a label, "release_date" becomes "Release Date"
func columnTitle(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// typeSchema maps a column type to the json schema type and format
func typeSchema(t model.ColumnType) (string, string) {
	switch t {
	case model.TypeSerial, model.TypeInteger, model.TypeBigInt:
		return "integer", ""
	case model.TypeReal, model.TypeNumeric:
		return "number", ""
	case model.TypeBoolean:
		return "boolean", ""
	case model.TypeDate:
		return "string", "date"
	case model.TypeTime:
		return "string", "time"
	case model.TypeTimestamp, model.TypeTimestamptz:
		return "string", "date-time"
	case model.TypeUUID:
		return "string", "uuid"
	case model.TypeJSON:
		return "string", "json"
	case model.TypeArray:
		return "array", ""
	}
	return "string", ""
}

func newColumnSchema(c *model.Column, target *model.Table) *columnSchema {
	s := &columnSchema{
		Title:   columnTitle(c.Name),
		Default: c.Default,
		Extra: &columnExtra{
			HelpText: c.HelpText,
			Choices:  c.Choices,
			Secret:   c.Secret,
			Unique:   c.Unique,
			Nullable: c.Null,
		},
	}
	s.Type, s.Format = typeSchema(c.Type)
	if c.Type == model.TypeVarchar {
		s.MaxLength = c.Length
	}
	if c.Type == model.TypeText {
		s.Extra.Widget = "text-area"
	}
	if c.Type == model.TypeArray {
		items := &columnSchema{}
		items.Type, items.Format = typeSchema(c.ArrayOf)
		s.Items = items
	}
	if target != nil {
		s.Extra.ForeignKey = true
		s.Extra.To = target.Name()
		s.Extra.TargetColumn = target.PrimaryKey().Name
	}
	return s
}

// tableSchema returns the json schema of a table, enriched with everything the
// admin needs to render it
func tableSchema(tc *TableConfig, targets map[string]*model.Table) *tableSchemaResponse {
	table := tc.Table()
	response := &tableSchemaResponse{
		Title:      core.Title(table.Name()),
		Type:       "object",
		Properties: map[string]*columnSchema{},
		HelpText:   table.HelpText(),
		Extra: tableExtra{
			VisibleColumnNames: tc.VisibleColumnNames(),
			VisibleFilterNames: tc.VisibleFilterNames(),
			RichTextColumns:    tc.RichTextColumnNames(),
			MediaColumns:       tc.MediaColumnNames(),
			LinkColumnName:     tc.LinkColumn().Name,
			TimeResolution:     tc.TimeResolution(),
			ForeignKeyConfig:   map[string]foreignKeyExtra{},
			PrimaryKeyName:     table.PrimaryKey().Name,
			HelpText:           table.HelpText(),
			MenuGroup:          tc.MenuGroup(),
		},
	}
	for _, o := range tc.OrderBy() {
		response.Extra.OrderBy = append(response.Extra.OrderBy, orderByExtra{Column: o.Column.Name, Ascending: o.Ascending})
	}
	for _, c := range table.Columns() {
		target := targets[c.Name]
		response.Properties[c.Name] = newColumnSchema(c, target)
		if target != nil {
			response.Extra.ForeignKeyConfig[c.Name] = foreignKeyExtra{
				To:           target.Name(),
				TargetColumn: target.PrimaryKey().Name,
				Readable:     target.Readable().Name,
			}
		}
		if c.Required && !c.PrimaryKey {
			response.Required = append(response.Required, c.Name)
		}
	}
	return response
}
