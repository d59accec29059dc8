package admin

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/schema"
)

const formSchemaID = "form"

// FormEndpoint handles a submitted form. data has been validated against the schema
// of the form. The result is either a message string or a *FileResponse. A *FormError
// is shown to the user, any other error is an internal error.
type FormEndpoint func(r *http.Request, data json.RawMessage) (interface{}, error)

// FormError is an error message for the user who submitted a form
type FormError struct {
	Msg string
}

func (e *FormError) Error() string {
	return e.Msg
}

// FileResponse is a file which is downloaded as the result of a form
type FileResponse struct {
	FileName    string
	ContentType string
	Content     []byte
}

// FormConfig is a custom form of the admin
type FormConfig struct {
	name        string
	slug        string
	description string
	group       string
	validator   *schema.Validator
	endpoint    FormEndpoint
}

// FormOption is an option for NewFormConfig
type FormOption func(*FormConfig)

// WithDescription shows a description above the form
func WithDescription(description string) FormOption {
	return func(f *FormConfig) {
		f.description = description
	}
}

// WithFormGroup puts the form into a group of the sidebar menu
func WithFormGroup(group string) FormOption {
	return func(f *FormConfig) {
		f.group = group
	}
}

// NewFormConfig creates a form. jsonSchema describes the fields of the form and
// validates submissions.
func NewFormConfig(name, jsonSchema string, endpoint FormEndpoint, options ...FormOption) (*FormConfig, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ConfigError{Msg: "form name must not be empty"}
	}
	if endpoint == nil {
		return nil, &ConfigError{Msg: "form " + name + " has no endpoint"}
	}
	f := &FormConfig{
		name:      name,
		slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		validator: schema.NewValidator(),
		endpoint:  endpoint,
	}
	if err := f.validator.Add(formSchemaID, jsonSchema); err != nil {
		return nil, &ConfigError{Msg: "form " + name + ": " + err.Error()}
	}
	for _, option := range options {
		option(f)
	}
	return f, nil
}

// Name returns the name of the form
func (f *FormConfig) Name() string {
	return f.name
}

// Slug returns the name of the form in URLs
func (f *FormConfig) Slug() string {
	return f.slug
}

// Description returns the description of the form
func (f *FormConfig) Description() string {
	return f.description
}

// Group returns the sidebar menu group, empty for ungrouped forms
func (f *FormConfig) Group() string {
	return f.group
}

type formItem struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (f *FormConfig) item() formItem {
	return formItem{Name: f.name, Slug: f.slug, Description: f.description}
}

type groupedForms struct {
	Grouped   map[string][]formItem `json:"grouped"`
	Ungrouped []formItem            `json:"ungrouped"`
}

func (a *Admin) handleFormRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("  handle form routes: /api/forms/ GET")
	router.HandleFunc("/forms/", a.formList).Methods(http.MethodGet)
	rlog.Debugln("  handle form routes: /api/forms/grouped/ GET")
	router.HandleFunc("/forms/grouped/", a.formListGrouped).Methods(http.MethodGet)
	rlog.Debugln("  handle form routes: /api/forms/{slug}/ GET,POST")
	router.HandleFunc("/forms/{slug}/", a.form).Methods(http.MethodGet)
	router.HandleFunc("/forms/{slug}/", a.submitForm).Methods(http.MethodPost)
	rlog.Debugln("  handle form routes: /api/forms/{slug}/schema/ GET")
	router.HandleFunc("/forms/{slug}/schema/", a.formSchema).Methods(http.MethodGet)
}

func (a *Admin) formList(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	items := make([]formItem, len(a.forms))
	for i, f := range a.forms {
		items[i] = f.item()
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *Admin) formListGrouped(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	response := groupedForms{Grouped: map[string][]formItem{}, Ungrouped: []formItem{}}
	for _, f := range a.forms {
		if f.group != "" {
			response.Grouped[f.group] = append(response.Grouped[f.group], f.item())
		} else {
			response.Ungrouped = append(response.Ungrouped, f.item())
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// lookupForm answers the request with 404 if there is no form with the slug of the request
func (a *Admin) lookupForm(w http.ResponseWriter, r *http.Request) (*FormConfig, bool) {
	f, ok := a.formMap[mux.Vars(r)["slug"]]
	if !ok {
		writeError(w, http.StatusNotFound, "No such form found")
	}
	return f, ok
}

func (a *Admin) form(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	if f, ok := a.lookupForm(w, r); ok {
		writeJSON(w, http.StatusOK, f.item())
	}
}

func (a *Admin) formSchema(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	s, _ := f.validator.Schema(formSchemaID)
	writeJSONWithEtag(w, r, s)
}

func (a *Admin) submitForm(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	err = f.validator.ValidateBytes(body, formSchemaID)
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusUnprocessableEntity, validationErr.Details)
		return
	}
	if err != nil {
		rlog.WithError(err).Errorf("Error 6401: cannot validate form %s", f.slug)
		http.Error(w, "Error 6401", http.StatusInternalServerError)
		return
	}

	result, err := f.endpoint(r, json.RawMessage(body))
	var formErr *FormError
	if errors.As(err, &formErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"custom_form_error": formErr.Msg})
		return
	}
	if err != nil {
		rlog.WithError(err).Errorf("Error 6402: form %s failed", f.slug)
		http.Error(w, "Error 6402", http.StatusInternalServerError)
		return
	}

	switch result := result.(type) {
	case *FileResponse:
		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
		w.Write(result.Content)
	case string:
		if result == "" {
			result = "Successfully submitted"
		}
		writeJSON(w, http.StatusOK, map[string]string{"custom_form_success": result})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"custom_form_success": "Successfully submitted"})
	}
}
