// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jinzhu/inflection"
)

// Operation represents a row operation, one of Create, Read, Update, Delete, List
//
type Operation string

// all supported row operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Modifying returns true for operations which change data
func (o Operation) Modifying() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

// Notifier is an interface to receive notifications about modified rows
type Notifier interface {
	Notify(ctx context.Context, table string, operation Operation, payload []byte) error
}

// Title returns a human readable singular title for a table name.
// Example: "movie_ratings" becomes "Movie Rating".
func Title(table string) string {
	parts := strings.Split(table, "_")
	if len(parts) > 0 {
		parts[len(parts)-1] = inflection.Singular(parts[len(parts)-1])
	}
	for i, s := range parts {
		if len(s) == 0 {
			continue
		}
		runes := []rune(strings.ToLower(s))
		r := runes[0]
		if 'a' <= r && r <= 'z' {
			r += 'A' - 'a'
			runes[0] = r
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
