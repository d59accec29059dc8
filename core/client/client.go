// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to the admin REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice if one request handler needs to call other handlers to fulfill
its task. It is also perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/kadmin/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context

	defaultHeaders map[string]string
	cookies        []*http.Cookie
}

// NewWithRouter creates a client to make pseudo-REST requests to the admin,
// through the mux router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the admin
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithCookies returns a new client which sends cookies with every request, for
// example the session cookie returned by a login.
func (c Client) WithCookies(cookies ...*http.Cookie) Client {
	c.cookies = append(append([]*http.Cookie{}, c.cookies...), cookies...)
	return c
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization returns a new client with admin authorizations
// (this works only directly against the mux router, for a normal client
//
//	use WithToken()))
func (c Client) WithAdminAuthorization() Client {
	return c.WithAuthorization(&access.Authorization{
		Identity: "admin",
		Roles:    []string{access.RoleAdmin},
	})
}

// WithSuperuserAuthorization returns a new client with admin and superuser authorizations
// (this works only directly against the mux router, for a normal client
//
//	use WithToken()))
func (c Client) WithSuperuserAuthorization() Client {
	return c.WithAuthorization(&access.Authorization{
		Identity: "superuser",
		Roles:    []string{access.RoleAdmin, access.RoleSuperuser},
	})
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the mux router, for a normal client
//
//	use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = c.auth.ContextWithAuthorization(ctx)
	}
	return ctx
}

// StatusError is returned when a request is answered with an unexpected status code
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: handler returned wrong status code %d. Error: %s", e.Method, e.Path, e.Status, e.Body)
}

// Do sends a request to path and returns the response together with its body.
// The status code is not checked.
func (c Client) Do(method, path string, header map[string]string, body io.Reader) (*http.Response, []byte, error) {
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, body)
	if err != nil {
		return nil, nil, err
	}
	for key, value := range c.defaultHeaders {
		r.Header.Set(key, value)
	}
	for key, value := range header {
		r.Header.Set(key, value)
	}
	for _, cookie := range c.cookies {
		r.AddCookie(cookie)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		return rec.Result(), rec.Body.Bytes(), nil
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	return res, resBody, err
}

func (c Client) send(method, path string, header map[string]string, body interface{}, result interface{}, expected ...int) (int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, nil, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewReader(j)
		if header == nil {
			header = map[string]string{}
		}
		if _, ok := header["Content-Type"]; !ok {
			header["Content-Type"] = "application/json"
		}
	}

	res, resBody, err := c.Do(method, path, header, reader)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	status := res.StatusCode
	ok := false
	for _, e := range expected {
		ok = ok || status == e
	}
	if !ok {
		return status, res.Header, &StatusError{Method: method, Path: path, Status: status, Body: strings.TrimSpace(string(resBody))}
	}
	if status == http.StatusNoContent || len(resBody) == 0 || result == nil {
		return status, res.Header, nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return status, res.Header, nil
	}
	return status, res.Header, json.Unmarshal(resBody, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.send(http.MethodGet, path, nil, nil, result, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawGetWithHeader gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code and the header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	return c.send(http.MethodGet, path, header, nil, result, http.StatusOK, http.StatusNoContent)
}

// RawPost posts a resource to path. Expects http.StatusCreated or http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.RawPostWithHeader(path, nil, body, result)
}

// RawPostWithHeader posts a resource to path with additional headers.
func (c Client) RawPostWithHeader(path string, header map[string]string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.send(http.MethodPost, path, header, body, result, http.StatusCreated, http.StatusOK)
	return status, err
}

// RawPut puts a resource to path. Expects http.StatusOK or http.StatusNoContent as valid responses,
// otherwise it will flag an error. Returns the actual http status code.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.send(http.MethodPut, path, nil, body, result, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawPatch puts a patch to path. Expects http.StatusOK or http.StatusNoContent as valid responses,
// otherwise it will flag an error. Returns the actual http status code.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	status, _, err := c.send(http.MethodPatch, path, nil, body, result, http.StatusOK, http.StatusNoContent)
	return status, err
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent or http.StatusOK as response, otherwise it will
// flag an error.
//
// Returns the actual http status code.
func (c Client) RawDelete(path string) (int, error) {
	status, _, err := c.send(http.MethodDelete, path, nil, nil, nil, http.StatusNoContent, http.StatusOK)
	return status, err
}

// PostMultipart uploads a file together with form fields as multipart form to path.
// Expects http.StatusOK or http.StatusCreated as response.
func (c Client) PostMultipart(path string, fields map[string]string, fileName string, data []byte, result interface{}) (int, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return 0, err
		}
	}
	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return 0, err
	}
	if _, err = fw.Write(data); err != nil {
		return 0, err
	}
	w.Close()

	status, _, err := c.send(http.MethodPost, path, map[string]string{"Content-Type": w.FormDataContentType()},
		b.Bytes(), result, http.StatusOK, http.StatusCreated)
	return status, err
}

// Table represents a table of the admin
type Table struct {
	client     Client
	name       string
	parameters url.Values
}

// Table returns the table name
func (c Client) Table(name string) Table {
	return Table{client: c, name: name, parameters: url.Values{}}
}

// WithParameter returns a new table with a query parameter for List and Count
func (t Table) WithParameter(key string, value string) Table {
	parameters := url.Values{}
	for k, v := range t.parameters {
		parameters[k] = append([]string{}, v...)
	}
	parameters.Add(key, value)
	t.parameters = parameters
	return t
}

// WithFilter is a shortcut for WithParameter
func (t Table) WithFilter(column string, value string) Table {
	return t.WithParameter(column, value)
}

// Path returns the path of the table, with a trailing slash
func (t Table) Path() string {
	return "/api/tables/" + t.name + "/"
}

func (t Table) query() string {
	if len(t.parameters) == 0 {
		return ""
	}
	return "?" + t.parameters.Encode()
}

// RowPath returns the path of a row
func (t Table) RowPath(id interface{}) string {
	return t.Path() + url.PathEscape(fmt.Sprint(id)) + "/"
}

// List lists the rows of the table into result, typically *[]map[string]interface{}
func (t Table) List(result interface{}) (int, error) {
	var response struct {
		Rows json.RawMessage `json:"rows"`
	}
	status, err := t.client.RawGet(t.Path()+t.query(), &response)
	if err != nil || result == nil {
		return status, err
	}
	return status, json.Unmarshal(response.Rows, result)
}

// Count returns the number of rows matching the parameters
func (t Table) Count() (int, int, error) {
	var response struct {
		Count int `json:"count"`
	}
	status, err := t.client.RawGet(t.Path()+"count/"+t.query(), &response)
	return response.Count, status, err
}

// Create creates a new row
func (t Table) Create(body interface{}, result interface{}) (int, error) {
	return t.client.RawPost(t.Path(), body, result)
}

// Read reads the row with id
func (t Table) Read(id interface{}, result interface{}) (int, error) {
	return t.client.RawGet(t.RowPath(id), result)
}

// Update replaces the row with id
func (t Table) Update(id interface{}, body interface{}, result interface{}) (int, error) {
	return t.client.RawPut(t.RowPath(id), body, result)
}

// Patch updates some columns of the row with id
func (t Table) Patch(id interface{}, body interface{}, result interface{}) (int, error) {
	return t.client.RawPatch(t.RowPath(id), body, result)
}

// Delete deletes the row with id
func (t Table) Delete(id interface{}) (int, error) {
	return t.client.RawDelete(t.RowPath(id))
}

// ID returns the integer primary key of a row which was decoded into a map
func ID(row map[string]interface{}, primaryKey string) int64 {
	switch v := row[primaryKey].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		i, _ := v.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	}
	return 0
}
