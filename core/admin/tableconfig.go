package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/relabs-tech/kadmin/core/media"
	"github.com/relabs-tech/kadmin/core/model"
)

// ErrInvalidConfiguration is wrapped by all configuration errors
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigError is a configuration error of a table or form. It is detected when the
// admin is assembled, never at request time.
type ConfigError struct {
	Table string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return "invalid configuration: " + e.Msg
	}
	return fmt.Sprintf("invalid configuration of table %s: %s", e.Table, e.Msg)
}

// Unwrap makes errors.Is(err, ErrInvalidConfiguration) work
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// HTTPError is an error with a http status code. Validators and hooks return it to
// answer a request with a specific status.
type HTTPError struct {
	Status int
	Msg    string
}

func (e *HTTPError) Error() string {
	return e.Msg
}

// Validator checks a request before it is handled. A returned *HTTPError decides the
// status code of the response, any other error results in 400.
type Validator func(r *http.Request) error

// Validators are the validators of the CRUD routes of a table. Every runs before
// each route specific validator.
type Validators struct {
	Every        []Validator
	GetAll       []Validator
	GetSingle    []Validator
	PostSingle   []Validator
	PutSingle    []Validator
	PatchSingle  []Validator
	DeleteSingle []Validator
}

// Row is a single row of a table, keyed by column name
type Row map[string]interface{}

// SaveHook is called before a row is created or replaced. It may modify the row or
// abort the write with an error.
type SaveHook func(ctx context.Context, row Row) (Row, error)

// PatchHook is called before a row is patched with values
type PatchHook func(ctx context.Context, id string, values Row) (Row, error)

// DeleteHook is called before a row is deleted
type DeleteHook func(ctx context.Context, id string) error

// Hooks are called before rows of a table are written
type Hooks struct {
	PreSave   []SaveHook
	PrePatch  []PatchHook
	PreDelete []DeleteHook
}

// OrderBy is a sort order of a table
type OrderBy struct {
	Column    *model.Column
	Ascending bool
}

// String returns the order in query parameter notation, e.g. "-name"
func (o OrderBy) String() string {
	if o.Ascending {
		return o.Column.Name
	}
	return "-" + o.Column.Name
}

// TableConfig configures how a table is presented in the admin. It is immutable once
// created with NewTableConfig.
type TableConfig struct {
	table                 *model.Table
	visibleColumns        []*model.Column
	excludeVisibleColumns []*model.Column
	visibleFilters        []*model.Column
	excludeVisibleFilters []*model.Column
	richTextColumns       []*model.Column
	mediaStorages         []media.Storage
	validators            Validators
	hooks                 Hooks
	menuGroup             string
	linkColumn            *model.Column
	orderBy               []OrderBy
	timeResolution        map[string]int
}

// TableOption is an option for NewTableConfig
type TableOption func(*TableConfig) error

func (tc *TableConfig) columns(names []string) ([]*model.Column, error) {
	columns := make([]*model.Column, 0, len(names))
	for _, name := range names {
		c, ok := tc.table.Column(name)
		if !ok {
			return nil, &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("unknown column %s", name)}
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// WithVisibleColumns shows only the named columns in the list view, in the given order
func WithVisibleColumns(names ...string) TableOption {
	return func(tc *TableConfig) (err error) {
		tc.visibleColumns, err = tc.columns(names)
		return
	}
}

// WithExcludeVisibleColumns hides the named columns in the list view
func WithExcludeVisibleColumns(names ...string) TableOption {
	return func(tc *TableConfig) (err error) {
		tc.excludeVisibleColumns, err = tc.columns(names)
		return
	}
}

// WithVisibleFilters offers only the named columns as filters
func WithVisibleFilters(names ...string) TableOption {
	return func(tc *TableConfig) (err error) {
		tc.visibleFilters, err = tc.columns(names)
		return
	}
}

// WithExcludeVisibleFilters offers all columns but the named ones as filters
func WithExcludeVisibleFilters(names ...string) TableOption {
	return func(tc *TableConfig) (err error) {
		tc.excludeVisibleFilters, err = tc.columns(names)
		return
	}
}

// WithRichTextColumns edits the named text columns with a rich text editor
func WithRichTextColumns(names ...string) TableOption {
	return func(tc *TableConfig) (err error) {
		tc.richTextColumns, err = tc.columns(names)
		return
	}
}

// WithMediaStorage stores the files of media columns. Each storage is bound to a
// column of the table.
func WithMediaStorage(storages ...media.Storage) TableOption {
	return func(tc *TableConfig) error {
		tc.mediaStorages = append(tc.mediaStorages, storages...)
		return nil
	}
}

// WithValidators adds validators to the CRUD routes of the table
func WithValidators(validators Validators) TableOption {
	return func(tc *TableConfig) error {
		tc.validators = validators
		return nil
	}
}

// WithHooks adds hooks which run before rows are written
func WithHooks(hooks Hooks) TableOption {
	return func(tc *TableConfig) error {
		tc.hooks = hooks
		return nil
	}
}

// WithMenuGroup puts the table into a group of the sidebar menu
func WithMenuGroup(group string) TableOption {
	return func(tc *TableConfig) error {
		tc.menuGroup = group
		return nil
	}
}

// WithLinkColumn links rows of the list view to their detail page through the named
// column. The link column must not be a foreign key.
func WithLinkColumn(name string) TableOption {
	return func(tc *TableConfig) error {
		c, ok := tc.table.Column(name)
		if !ok {
			return &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("unknown link column %s", name)}
		}
		tc.linkColumn = c
		return nil
	}
}

// WithOrderBy sets the default sort order of the list view. A leading '-' sorts
// descending, e.g. WithOrderBy("-release_date", "name").
func WithOrderBy(names ...string) TableOption {
	return func(tc *TableConfig) error {
		tc.orderBy = nil
		for _, name := range names {
			order := OrderBy{Ascending: !strings.HasPrefix(name, "-")}
			c, ok := tc.table.Column(strings.TrimPrefix(name, "-"))
			if !ok {
				return &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("unknown order by column %s", name)}
			}
			order.Column = c
			tc.orderBy = append(tc.orderBy, order)
		}
		return nil
	}
}

// WithTimeResolution sets the step in seconds of the time picker of a time or
// timestamp column
func WithTimeResolution(name string, seconds int) TableOption {
	return func(tc *TableConfig) error {
		c, ok := tc.table.Column(name)
		if !ok {
			return &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("unknown column %s", name)}
		}
		if !c.Type.IsTemporal() {
			return &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("time resolution given for %s column %s", c.Type, name)}
		}
		if seconds <= 0 {
			return &ConfigError{Table: tc.table.Name(), Msg: fmt.Sprintf("time resolution of %s must be positive", name)}
		}
		if tc.timeResolution == nil {
			tc.timeResolution = map[string]int{}
		}
		tc.timeResolution[name] = seconds
		return nil
	}
}

// NewTableConfig creates the configuration of table. It fails with a *ConfigError if
// visible columns and excluded visible columns are both set, if visible filters and
// excluded visible filters are both set, or if the link column is a foreign key.
// Empty lists count as not set.
func NewTableConfig(table *model.Table, options ...TableOption) (*TableConfig, error) {
	if table == nil {
		return nil, &ConfigError{Msg: "table is missing"}
	}
	tc := &TableConfig{table: table}
	for _, option := range options {
		if err := option(tc); err != nil {
			return nil, err
		}
	}

	if len(tc.visibleColumns) > 0 && len(tc.excludeVisibleColumns) > 0 {
		return nil, &ConfigError{Table: table.Name(), Msg: "only visible columns or exclude visible columns can be set, not both"}
	}
	if len(tc.visibleFilters) > 0 && len(tc.excludeVisibleFilters) > 0 {
		return nil, &ConfigError{Table: table.Name(), Msg: "only visible filters or exclude visible filters can be set, not both"}
	}
	if tc.linkColumn.IsForeignKey() {
		return nil, &ConfigError{Table: table.Name(), Msg: fmt.Sprintf("the link column %s must not be a foreign key", tc.linkColumn.Name)}
	}

	seen := map[string]bool{}
	for _, storage := range tc.mediaStorages {
		c := storage.Column()
		if c == nil || c.Table() != table {
			return nil, &ConfigError{Table: table.Name(), Msg: fmt.Sprintf("media storage for %v does not belong to this table", c)}
		}
		if seen[c.Name] {
			return nil, &ConfigError{Table: table.Name(), Msg: fmt.Sprintf("more than one media storage for column %s", c.Name)}
		}
		seen[c.Name] = true
	}
	return tc, nil
}

// MustNewTableConfig is NewTableConfig which panics on configuration errors
func MustNewTableConfig(table *model.Table, options ...TableOption) *TableConfig {
	tc, err := NewTableConfig(table, options...)
	if err != nil {
		panic(err)
	}
	return tc
}

// Table returns the table of the configuration
func (tc *TableConfig) Table() *model.Table {
	return tc.table
}

// VisibleColumns returns the columns shown in the list view
func (tc *TableConfig) VisibleColumns() []*model.Column {
	return model.ResolveColumns(tc.table.Columns(), tc.visibleColumns, tc.excludeVisibleColumns)
}

// VisibleColumnNames returns the names of VisibleColumns
func (tc *TableConfig) VisibleColumnNames() []string {
	return model.ColumnNames(tc.VisibleColumns())
}

// VisibleFilters returns the columns which can be filtered
func (tc *TableConfig) VisibleFilters() []*model.Column {
	return model.ResolveColumns(tc.table.Columns(), tc.visibleFilters, tc.excludeVisibleFilters)
}

// VisibleFilterNames returns the names of VisibleFilters
func (tc *TableConfig) VisibleFilterNames() []string {
	return model.ColumnNames(tc.VisibleFilters())
}

// RichTextColumnNames returns the names of the rich text columns
func (tc *TableConfig) RichTextColumnNames() []string {
	return model.ColumnNames(tc.richTextColumns)
}

// MediaStorages returns the media storages of the table
func (tc *TableConfig) MediaStorages() []media.Storage {
	return append([]media.Storage{}, tc.mediaStorages...)
}

// MediaStorage returns the media storage of column
func (tc *TableConfig) MediaStorage(column string) (media.Storage, bool) {
	for _, s := range tc.mediaStorages {
		if s.Column().Name == column {
			return s, true
		}
	}
	return nil, false
}

// MediaColumnNames returns the names of the columns with a media storage
func (tc *TableConfig) MediaColumnNames() []string {
	names := make([]string, len(tc.mediaStorages))
	for i, s := range tc.mediaStorages {
		names[i] = s.Column().Name
	}
	return names
}

// LinkColumn returns the column which links to the detail page, the primary key by default
func (tc *TableConfig) LinkColumn() *model.Column {
	if tc.linkColumn == nil {
		return tc.table.PrimaryKey()
	}
	return tc.linkColumn
}

// OrderBy returns the default sort order, ascending primary key by default
func (tc *TableConfig) OrderBy() []OrderBy {
	if len(tc.orderBy) == 0 {
		return []OrderBy{{Column: tc.table.PrimaryKey(), Ascending: true}}
	}
	return append([]OrderBy{}, tc.orderBy...)
}

// TimeResolution returns the time picker step in seconds per column
func (tc *TableConfig) TimeResolution() map[string]int {
	result := make(map[string]int, len(tc.timeResolution))
	for k, v := range tc.timeResolution {
		result[k] = v
	}
	return result
}

// MenuGroup returns the sidebar menu group, empty for ungrouped tables
func (tc *TableConfig) MenuGroup() string {
	return tc.menuGroup
}

// Validators returns the validators of the table
func (tc *TableConfig) Validators() Validators {
	return tc.validators
}

// Hooks returns the hooks of the table
func (tc *TableConfig) Hooks() Hooks {
	return tc.hooks
}

// withEveryValidator returns a copy of the configuration with v prepended to Validators.Every
func (tc *TableConfig) withEveryValidator(v Validator) *TableConfig {
	c := *tc
	c.validators.Every = append([]Validator{v}, tc.validators.Every...)
	return &c
}

// withSaveHook returns a copy of the configuration with hooks prepended to the save and patch hooks
func (tc *TableConfig) withSaveHook(save SaveHook, patch PatchHook) *TableConfig {
	c := *tc
	c.hooks.PreSave = append([]SaveHook{save}, tc.hooks.PreSave...)
	c.hooks.PrePatch = append([]PatchHook{patch}, tc.hooks.PrePatch...)
	return &c
}
