// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package schema validates JSON documents, for example form submissions, against JSON schemas
package schema

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Detail describes one violation of a schema
type Detail struct {
	// Loc is the location of the violation, starting with "body"
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError is returned when a document does not match its schema
type ValidationError struct {
	Details []Detail
}

func (e *ValidationError) Error() string {
	s := "the document is not valid :\n"
	for _, d := range e.Details {
		s += fmt.Sprintf("- %s: %s\n", strings.Join(d.Loc, "."), d.Msg)
	}
	return s
}

// Validator is a utility to validate JSON object against a given schema
type Validator struct {
	refs             []string
	schemaValidators map[string]*gojsonschema.Schema
	schemas          map[string]json.RawMessage
}

// NewValidator creates a new Validator. The refs are schemas which may be referenced
// by $ref from the schemas added later; they must carry an $id.
func NewValidator(refs ...string) *Validator {
	return &Validator{
		refs:             refs,
		schemaValidators: make(map[string]*gojsonschema.Schema),
		schemas:          make(map[string]json.RawMessage),
	}
}

// Add compiles schema and adds it under id. Schemas cannot reference each other,
// a reference can only point to one of the refs of the validator.
func (v *Validator) Add(id, schema string) error {
	if !json.Valid([]byte(schema)) {
		return fmt.Errorf("parse error in schema %s: '%s'", id, schema)
	}
	if _, ok := v.schemaValidators[id]; ok {
		return fmt.Errorf("schema %s already exists", id)
	}
	sl := gojsonschema.NewSchemaLoader()
	for _, ref := range v.refs {
		if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
			return fmt.Errorf("cannot add ref %s %s", ref, err)
		}
	}
	compiled, err := sl.Compile(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return fmt.Errorf("cannot compile schema %s %s", id, err)
	}
	v.schemaValidators[id] = compiled
	v.schemas[id] = json.RawMessage(schema)
	return nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemaValidators[schemaID]
	return ok
}

// Schema returns the JSON schema with schemaID
func (v *Validator) Schema(schemaID string) (json.RawMessage, bool) {
	s, ok := v.schemas[schemaID]
	return s, ok
}

// ValidateStruct validates the given json as a struct against schemaID. If no error is returned,
// then the passed json is valid
func (v *Validator) ValidateStruct(json interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(json), schemaID)
}

// ValidateBytes validates the given json document against schemaID. If no error is returned, then the
// passed json is valid. An invalid document yields a *ValidationError.
func (v *Validator) ValidateBytes(document []byte, schemaID string) error {
	if !json.Valid(document) {
		return &ValidationError{Details: []Detail{{
			Loc:  []string{"body"},
			Msg:  "invalid JSON",
			Type: "value_error.jsondecode",
		}}}
	}
	return v.validate(gojsonschema.NewBytesLoader(document), schemaID)
}

// validate validates the given loader against schemaID. If no error is returned, then the passed json
// is valid
func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {
	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}

	if !result.Valid() {
		verr := &ValidationError{}
		for _, e := range result.Errors() {
			loc := []string{"body"}
			if field := e.Field(); field != "" && field != "(root)" {
				loc = append(loc, strings.Split(field, ".")...)
			}
			if property, ok := e.Details()["property"].(string); ok && e.Type() == "required" {
				loc = append(loc, property)
			}
			verr.Details = append(verr.Details, Detail{
				Loc:  loc,
				Msg:  e.Description(),
				Type: e.Type(),
			})
		}
		return verr
	}
	return nil
}
