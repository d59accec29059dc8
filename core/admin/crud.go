package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"github.com/relabs-tech/kadmin/core"
	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

// MaxPageSize is the largest page size a client can request
const MaxPageSize = 1000

// reference is a foreign key of another table pointing to a table
type reference struct {
	TableName  string `json:"tableName"`
	ColumnName string `json:"columnName"`
}

// crud serves the REST routes of a single table
type crud struct {
	admin      *Admin
	config     *TableConfig
	table      *model.Table
	name       string
	pk         *model.Column
	columns    []*model.Column
	targets    map[string]*model.Table
	references []reference
}

func newCrud(a *Admin, tc *TableConfig) (*crud, error) {
	table := tc.Table()
	cr := &crud{
		admin:   a,
		config:  tc,
		table:   table,
		name:    a.db.Table(table.Name()),
		pk:      table.PrimaryKey(),
		targets: map[string]*model.Table{},
	}
	for _, c := range table.Columns() {
		if !c.Secret {
			cr.columns = append(cr.columns, c)
		}
	}
	for _, fk := range table.ForeignKeys() {
		target, err := fk.References.Resolve()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve foreign key %s: %w", fk, err)
		}
		cr.targets[fk.Name] = target
	}
	return cr, nil
}

// linkReferences collects for every table the foreign keys of other tables of the
// admin which point to it
func linkReferences(cruds map[string]*crud) {
	for _, cr := range cruds {
		for name, target := range cr.targets {
			if other, ok := cruds[target.Name()]; ok {
				other.references = append(other.references, reference{TableName: cr.table.Name(), ColumnName: name})
			}
		}
	}
	for _, cr := range cruds {
		sort.Slice(cr.references, func(i, j int) bool {
			if cr.references[i].TableName == cr.references[j].TableName {
				return cr.references[i].ColumnName < cr.references[j].ColumnName
			}
			return cr.references[i].TableName < cr.references[j].TableName
		})
	}
}

func (cr *crud) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	prefix := "/tables/" + cr.table.Name()
	rlog.Debugln("  handle table routes:", prefix+"/", "GET,POST")
	router.Handle(prefix+"/", handlers.CompressHandler(http.HandlerFunc(cr.list))).Methods(http.MethodOptions, http.MethodGet)
	router.HandleFunc(prefix+"/", cr.create).Methods(http.MethodPost)

	rlog.Debugln("  handle table routes:", prefix+"/count/", "GET")
	router.HandleFunc(prefix+"/count/", cr.count).Methods(http.MethodGet)
	rlog.Debugln("  handle table routes:", prefix+"/schema/", "GET")
	router.Handle(prefix+"/schema/", handlers.CompressHandler(http.HandlerFunc(cr.schema))).Methods(http.MethodGet)
	rlog.Debugln("  handle table routes:", prefix+"/ids/", "GET")
	router.Handle(prefix+"/ids/", handlers.CompressHandler(http.HandlerFunc(cr.ids))).Methods(http.MethodGet)
	rlog.Debugln("  handle table routes:", prefix+"/new/", "GET")
	router.HandleFunc(prefix+"/new/", cr.new).Methods(http.MethodGet)
	rlog.Debugln("  handle table routes:", prefix+"/references/", "GET")
	router.HandleFunc(prefix+"/references/", cr.referencesHandler).Methods(http.MethodGet)

	rlog.Debugln("  handle table routes:", prefix+"/{id}/", "GET,PUT,PATCH,DELETE")
	router.Handle(prefix+"/{id}/", handlers.CompressHandler(http.HandlerFunc(cr.read))).Methods(http.MethodGet)
	router.HandleFunc(prefix+"/{id}/", cr.update).Methods(http.MethodPut)
	router.HandleFunc(prefix+"/{id}/", cr.patch).Methods(http.MethodPatch)
	router.HandleFunc(prefix+"/{id}/", cr.delete).Methods(http.MethodDelete)
}

// validate runs the Every validators followed by specific. It answers the request
// and returns false if a validator fails.
func (cr *crud) validate(w http.ResponseWriter, r *http.Request, specific []Validator) bool {
	validators := append(append([]Validator{}, cr.config.Validators().Every...), specific...)
	for _, v := range validators {
		if err := v(r); err != nil {
			writeStatusError(w, err)
			return false
		}
	}
	return true
}

// writeStatusError answers with the status of an *HTTPError, 400 otherwise
func writeStatusError(w http.ResponseWriter, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		writeError(w, httpErr.Status, httpErr.Msg)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// databaseError answers data and integrity violations with 400 and everything else
// with an internal error
func databaseError(w http.ResponseWriter, r *http.Request, err error, code string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			writeError(w, http.StatusBadRequest, pqErr.Message)
			return
		}
	}
	logger.FromContext(r.Context()).WithError(err).Errorf("Error %s: database failure", code)
	http.Error(w, "Error "+code, http.StatusInternalServerError)
}

func (cr *crud) notify(ctx context.Context, operation core.Operation, payload []byte) {
	if cr.admin.notifier == nil {
		return
	}
	if err := cr.admin.notifier.Notify(ctx, cr.table.Name(), operation, payload); err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 6030: cannot notify %s of %s", operation, cr.table.Name())
	}
}

// deleteMediaFiles removes the files which the media columns of a deleted row point
// to. The row is gone already, failures are only logged.
func (cr *crud) deleteMediaFiles(ctx context.Context, deleted []byte) {
	storages := cr.config.MediaStorages()
	if len(storages) == 0 {
		return
	}
	rlog := logger.FromContext(ctx)
	var row map[string]interface{}
	if err := json.Unmarshal(deleted, &row); err != nil {
		rlog.WithError(err).Errorln("Error 6031: cannot read deleted row of", cr.table.Name())
		return
	}
	for _, storage := range storages {
		var keys []string
		switch v := row[storage.Column().Name].(type) {
		case string:
			keys = append(keys, v)
		case []interface{}:
			for _, k := range v {
				if s, ok := k.(string); ok {
					keys = append(keys, s)
				}
			}
		}
		for _, key := range keys {
			if key == "" {
				continue
			}
			if err := storage.DeleteFile(ctx, key); err != nil {
				rlog.WithError(err).Errorf("Error 6032: cannot delete media file %s of %s", key, storage.Column())
			}
		}
	}
}

func quotedColumn(c *model.Column) string {
	return "r." + csql.Quote(c.Name)
}

// selectList returns the non secret columns of the table aliased as r. With readable
// it adds the readable representation of every foreign key as {column}_readable.
func (cr *crud) selectList(readable bool) string {
	parts := make([]string, 0, len(cr.columns))
	for _, c := range cr.columns {
		parts = append(parts, quotedColumn(c))
	}
	if readable {
		for _, fk := range cr.table.ForeignKeys() {
			if fk.Secret {
				continue
			}
			target := cr.targets[fk.Name]
			parts = append(parts, fmt.Sprintf("(SELECT x.%s FROM %s x WHERE x.%s = %s) AS %s",
				csql.Quote(target.Readable().Name), cr.admin.db.Table(target.Name()),
				csql.Quote(target.PrimaryKey().Name), quotedColumn(fk), csql.Quote(fk.Name+"_readable")))
		}
	}
	return strings.Join(parts, ", ")
}

// escapeLike escapes the wildcards of a LIKE pattern
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var comparisonOperators = map[string]string{
	"":    "=",
	"e":   "=",
	"lt":  "<",
	"lte": "<=",
	"gt":  ">",
	"gte": ">=",
}

// where builds the filter condition of a list or count query. Filters are query
// parameters named after visible filter columns, optionally refined by
// {column}__operator and, for text columns, {column}__match.
func (cr *crud) where(query map[string][]string) (string, []interface{}, error) {
	bases := map[string]bool{}
	for key := range query {
		if strings.HasPrefix(key, "__") {
			continue
		}
		key = strings.TrimSuffix(strings.TrimSuffix(key, "__operator"), "__match")
		bases[key] = true
	}
	names := make([]string, 0, len(bases))
	for name := range bases {
		names = append(names, name)
	}
	sort.Strings(names)

	filters := map[string]*model.Column{}
	for _, c := range cr.config.VisibleFilters() {
		if !c.Secret {
			filters[c.Name] = c
		}
	}

	get := func(key string) string {
		if values := query[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}

	var conditions []string
	var args []interface{}
	for _, name := range names {
		c, ok := filters[name]
		if !ok {
			return "", nil, fmt.Errorf("%s is not a valid filter", name)
		}
		value, operator := get(name), get(name+"__operator")
		switch operator {
		case "is_null":
			conditions = append(conditions, quotedColumn(c)+" IS NULL")
			continue
		case "not_null":
			conditions = append(conditions, quotedColumn(c)+" IS NOT NULL")
			continue
		}
		if value == "" {
			continue
		}
		switch {
		case c.Type.IsText():
			pattern := escapeLike(value)
			switch match := get(name + "__match"); match {
			case "", "contains":
				pattern = "%" + pattern + "%"
			case "starts":
				pattern = pattern + "%"
			case "ends":
				pattern = "%" + pattern
			case "exact":
				args = append(args, value)
				conditions = append(conditions, fmt.Sprintf("%s = $%d", quotedColumn(c), len(args)))
				continue
			default:
				return "", nil, fmt.Errorf("%s is not a valid match for %s", match, name)
			}
			args = append(args, pattern)
			conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", quotedColumn(c), len(args)))
		case c.Type == model.TypeArray:
			args = append(args, value)
			conditions = append(conditions, fmt.Sprintf("$%d = ANY(%s)", len(args), quotedColumn(c)))
		case c.Type == model.TypeJSON:
			args = append(args, value)
			conditions = append(conditions, fmt.Sprintf("%s::text = $%d", quotedColumn(c), len(args)))
		default:
			op, ok := comparisonOperators[operator]
			if !ok {
				return "", nil, fmt.Errorf("%s is not a valid operator for %s", operator, name)
			}
			args = append(args, value)
			conditions = append(conditions, fmt.Sprintf("%s %s $%d", quotedColumn(c), op, len(args)))
		}
	}
	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// order parses a comma separated list of columns, each optionally prefixed with
// '-' for descending order. The primary key is appended for a stable order.
func (cr *crud) order(param string) (string, error) {
	orders := cr.config.OrderBy()
	if param != "" {
		orders = nil
		for _, name := range strings.Split(param, ",") {
			name = strings.TrimSpace(name)
			c, ok := cr.table.Column(strings.TrimPrefix(name, "-"))
			if !ok || c.Secret {
				return "", fmt.Errorf("%s is not a valid order", name)
			}
			orders = append(orders, OrderBy{Column: c, Ascending: !strings.HasPrefix(name, "-")})
		}
	}
	parts := make([]string, 0, len(orders)+1)
	hasPrimaryKey := false
	for _, o := range orders {
		direction := " ASC"
		if !o.Ascending {
			direction = " DESC"
		}
		parts = append(parts, quotedColumn(o.Column)+direction)
		hasPrimaryKey = hasPrimaryKey || o.Column == cr.pk
	}
	if !hasPrimaryKey {
		parts = append(parts, quotedColumn(cr.pk)+" ASC")
	}
	return strings.Join(parts, ", "), nil
}

// pageSize returns the requested page size, the admin's default page size otherwise
func (cr *crud) pageSize(query map[string][]string) (int, *HTTPError) {
	param := ""
	if values := query["__page_size"]; len(values) > 0 {
		param = values[0]
	}
	if param == "" {
		return cr.admin.pageSize, nil
	}
	size, err := strconv.Atoi(param)
	if err != nil || size < 1 {
		return 0, &HTTPError{Status: http.StatusBadRequest, Msg: "__page_size must be a positive number"}
	}
	if size > MaxPageSize {
		return 0, &HTTPError{Status: http.StatusForbidden, Msg: "The page size limit has been exceeded"}
	}
	return size, nil
}

func (cr *crud) list(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetAll) {
		return
	}

	query := r.URL.Query()
	where, args, err := cr.where(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := cr.order(query.Get("__order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, httpErr := cr.pageSize(query)
	if httpErr != nil {
		writeStatusError(w, httpErr)
		return
	}
	page := 1
	if s := query.Get("__page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			writeError(w, http.StatusBadRequest, "__page must be a positive number")
			return
		}
	}
	readable := query.Get("__readable") == "true"

	args = append(args, pageSize, (page-1)*pageSize)
	sqlQuery := fmt.Sprintf("SELECT coalesce(json_agg(t), '[]'::json) FROM (SELECT %s FROM %s r%s ORDER BY %s LIMIT $%d OFFSET $%d) t;",
		cr.selectList(readable), cr.name, where, order, len(args)-1, len(args))

	var rows []byte
	if err = cr.admin.db.QueryRowContext(r.Context(), sqlQuery, args...).Scan(&rows); err != nil {
		databaseError(w, r, err, "6001")
		return
	}

	var jsonData bytes.Buffer
	jsonData.WriteString(`{"rows":`)
	jsonData.Write(rows)
	jsonData.WriteString(`}`)

	w.Header().Set("Pagination-Limit", strconv.Itoa(pageSize))
	w.Header().Set("Pagination-Current-Page", strconv.Itoa(page))
	writeJSONWithEtag(w, r, jsonData.Bytes())
}

type countResponse struct {
	Count    int `json:"count"`
	PageSize int `json:"page_size"`
}

func (cr *crud) count(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetAll) {
		return
	}

	query := r.URL.Query()
	where, args, err := cr.where(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, httpErr := cr.pageSize(query)
	if httpErr != nil {
		writeStatusError(w, httpErr)
		return
	}
	response := countResponse{PageSize: pageSize}
	err = cr.admin.db.QueryRowContext(r.Context(), "SELECT count(*) FROM "+cr.name+" r"+where+";", args...).Scan(&response.Count)
	if err != nil {
		databaseError(w, r, err, "6002")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (cr *crud) schema(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetAll) {
		return
	}
	jsonData, _ := json.MarshalWithOption(tableSchema(cr.config, cr.targets), json.DisableHTMLEscape())
	writeJSONWithEtag(w, r, jsonData)
}

func (cr *crud) ids(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetAll) {
		return
	}

	query := r.URL.Query()
	readable := "r." + csql.Quote(cr.table.Readable().Name) + "::text"
	var args []interface{}
	sqlQuery := "SELECT coalesce(json_object_agg(t.id, t.readable), '{}'::json) FROM (SELECT " +
		quotedColumn(cr.pk) + " AS id, " + readable + " AS readable FROM " + cr.name + " r"
	if search := query.Get("search"); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		sqlQuery += fmt.Sprintf(" WHERE %s ILIKE $%d", readable, len(args))
	}
	sqlQuery += " ORDER BY 2"
	for _, param := range []string{"limit", "offset"} {
		s := query.Get(param)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, param+" must be a number")
			return
		}
		args = append(args, n)
		sqlQuery += fmt.Sprintf(" %s $%d", strings.ToUpper(param), len(args))
	}
	sqlQuery += ") t;"

	var jsonData []byte
	if err := cr.admin.db.QueryRowContext(r.Context(), sqlQuery, args...).Scan(&jsonData); err != nil {
		databaseError(w, r, err, "6003")
		return
	}
	writeJSONWithEtag(w, r, jsonData)
}

func (cr *crud) new(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetSingle) {
		return
	}
	defaults := map[string]interface{}{}
	for _, c := range cr.columns {
		if c.PrimaryKey {
			continue
		}
		defaults[c.Name] = c.Default
	}
	writeJSON(w, http.StatusOK, defaults)
}

func (cr *crud) referencesHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	references := cr.references
	if references == nil {
		references = []reference{}
	}
	writeJSON(w, http.StatusOK, map[string][]reference{"references": references})
}

func (cr *crud) read(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if !cr.validate(w, r, cr.config.Validators().GetSingle) {
		return
	}

	readable := r.URL.Query().Get("__readable") == "true"
	sqlQuery := fmt.Sprintf("SELECT row_to_json(t) FROM (SELECT %s FROM %s r WHERE %s = $1) t;",
		cr.selectList(readable), cr.name, quotedColumn(cr.pk))
	var jsonData []byte
	err := cr.admin.db.QueryRowContext(r.Context(), sqlQuery, mux.Vars(r)["id"]).Scan(&jsonData)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "The resource doesn't exist")
		return
	}
	if err != nil {
		databaseError(w, r, err, "6004")
		return
	}
	writeJSONWithEtag(w, r, jsonData)
}

// decodeRow reads a JSON object from the request body
func decodeRow(r *http.Request) (Row, error) {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var row Row
	if err := decoder.Decode(&row); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if row == nil {
		return nil, errors.New("the body must be a json object")
	}
	return row, nil
}

// sqlValue converts a decoded JSON value into a query argument for column c
func sqlValue(c *model.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case model.TypeJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case model.TypeArray:
		elements, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s must be an array", c.Name)
		}
		array := make(pq.StringArray, len(elements))
		for i, e := range elements {
			switch e.(type) {
			case map[string]interface{}, []interface{}, nil:
				return nil, fmt.Errorf("%s contains an invalid element", c.Name)
			}
			array[i] = fmt.Sprint(e)
		}
		return array, nil
	}
	switch value := v.(type) {
	case string:
		if value == "" && !c.Type.IsText() {
			return nil, nil
		}
		return value, nil
	case json.Number:
		return value.String(), nil
	case bool, float64:
		return value, nil
	}
	return nil, fmt.Errorf("%s has an invalid value", c.Name)
}

func missing(row Row, name string) bool {
	v, ok := row[name]
	if !ok || v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && s == ""
}

// assignments returns the columns and query arguments of row. With complete, all
// required columns must be present, except secret columns when keepSecrets is set.
// The primary key is never written.
func (cr *crud) assignments(row Row, complete, keepSecrets bool) ([]string, []interface{}, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		if _, ok := cr.table.Column(name); !ok {
			return nil, nil, fmt.Errorf("%s is not a column of %s", name, cr.table.Name())
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if complete {
		for _, c := range cr.table.Columns() {
			if !c.Required || c.PrimaryKey || (keepSecrets && c.Secret) {
				continue
			}
			if missing(row, c.Name) {
				return nil, nil, fmt.Errorf("%s is required", c.Name)
			}
		}
	}

	var columns []string
	var args []interface{}
	for _, name := range names {
		c, _ := cr.table.Column(name)
		if c.PrimaryKey {
			continue
		}
		value, err := sqlValue(c, row[name])
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, csql.Quote(name))
		args = append(args, value)
	}
	return columns, args, nil
}

func (cr *crud) runSaveHooks(ctx context.Context, row Row) (Row, error) {
	var err error
	for _, hook := range cr.config.Hooks().PreSave {
		if row, err = hook(ctx, row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (cr *crud) create(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if cr.admin.readOnly {
		readOnly(w)
		return
	}
	if !cr.validate(w, r, cr.config.Validators().PostSingle) {
		return
	}

	row, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if row, err = cr.runSaveHooks(r.Context(), row); err != nil {
		writeStatusError(w, err)
		return
	}
	columns, args, err := cr.assignments(row, true, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	insert := "INSERT INTO " + cr.name + " DEFAULT VALUES"
	if len(columns) > 0 {
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		}
		insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", cr.name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	}
	sqlQuery := fmt.Sprintf("WITH x AS (%s RETURNING *) SELECT row_to_json(t) FROM (SELECT %s FROM x r) t;", insert, cr.selectList(false))

	var jsonData []byte
	if err = cr.admin.db.QueryRowContext(r.Context(), sqlQuery, args...).Scan(&jsonData); err != nil {
		databaseError(w, r, err, "6005")
		return
	}
	cr.notify(r.Context(), core.OperationCreate, jsonData)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	w.Write(jsonData)
}

// write updates the row with id and returns the updated row
func (cr *crud) write(w http.ResponseWriter, r *http.Request, id string, columns []string, args []interface{}, code string) ([]byte, bool) {
	if len(columns) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return nil, false
	}
	assignments := make([]string, len(columns))
	for i, c := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", c, i+2)
	}
	sqlQuery := fmt.Sprintf("WITH x AS (UPDATE %s SET %s WHERE %s = $1 RETURNING *) SELECT row_to_json(t) FROM (SELECT %s FROM x r) t;",
		cr.name, strings.Join(assignments, ", "), csql.Quote(cr.pk.Name), cr.selectList(false))

	var jsonData []byte
	err := cr.admin.db.QueryRowContext(r.Context(), sqlQuery, append([]interface{}{id}, args...)...).Scan(&jsonData)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "The resource doesn't exist")
		return nil, false
	}
	if err != nil {
		databaseError(w, r, err, code)
		return nil, false
	}
	cr.notify(r.Context(), core.OperationUpdate, jsonData)
	return jsonData, true
}

func (cr *crud) update(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if cr.admin.readOnly {
		readOnly(w)
		return
	}
	if !cr.validate(w, r, cr.config.Validators().PutSingle) {
		return
	}

	row, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if row, err = cr.runSaveHooks(r.Context(), row); err != nil {
		writeStatusError(w, err)
		return
	}
	columns, args, err := cr.assignments(row, true, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := cr.write(w, r, mux.Vars(r)["id"], columns, args, "6006"); ok {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (cr *crud) patch(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if cr.admin.readOnly {
		readOnly(w)
		return
	}
	if !cr.validate(w, r, cr.config.Validators().PatchSingle) {
		return
	}

	id := mux.Vars(r)["id"]
	row, err := decodeRow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, hook := range cr.config.Hooks().PrePatch {
		if row, err = hook(r.Context(), id, row); err != nil {
			writeStatusError(w, err)
			return
		}
	}
	columns, args, err := cr.assignments(row, false, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if jsonData, ok := cr.write(w, r, id, columns, args, "6007"); ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(jsonData)
	}
}

func (cr *crud) delete(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if cr.admin.readOnly {
		readOnly(w)
		return
	}
	if !cr.validate(w, r, cr.config.Validators().DeleteSingle) {
		return
	}

	id := mux.Vars(r)["id"]
	for _, hook := range cr.config.Hooks().PreDelete {
		if err := hook(r.Context(), id); err != nil {
			writeStatusError(w, err)
			return
		}
	}
	sqlQuery := fmt.Sprintf("WITH x AS (DELETE FROM %s WHERE %s = $1 RETURNING *) SELECT row_to_json(t) FROM (SELECT %s FROM x r) t;",
		cr.name, csql.Quote(cr.pk.Name), cr.selectList(false))
	var jsonData []byte
	err := cr.admin.db.QueryRowContext(r.Context(), sqlQuery, id).Scan(&jsonData)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "The resource doesn't exist")
		return
	}
	if err != nil {
		databaseError(w, r, err, "6008")
		return
	}
	cr.notify(r.Context(), core.OperationDelete, jsonData)
	cr.deleteMediaFiles(r.Context(), jsonData)
	w.WriteHeader(http.StatusNoContent)
}
