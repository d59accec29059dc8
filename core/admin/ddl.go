package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

func sqlType(t model.ColumnType, length int) string {
	switch t {
	case model.TypeSerial:
		return "SERIAL"
	case model.TypeVarchar:
		if length > 0 {
			return fmt.Sprintf("varchar(%d)", length)
		}
		return "varchar"
	}
	return string(t)
}

// sqlDefault returns the default value of c as a SQL literal
func sqlDefault(c *model.Column) (string, error) {
	switch v := c.Default.(type) {
	case nil:
		return "", nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case string:
		return pq.QuoteLiteral(v), nil
	case int, int64, float64, json.Number:
		return fmt.Sprint(v), nil
	}
	if c.Type == model.TypeJSON {
		b, err := json.Marshal(c.Default)
		if err != nil {
			return "", err
		}
		return pq.QuoteLiteral(string(b)), nil
	}
	return "", fmt.Errorf("unsupported default value %v of column %s", c.Default, c)
}

// columnDefinition returns the DDL of c. withReference is false for references which
// close a cycle, their target does not exist yet.
func (a *Admin) columnDefinition(c *model.Column, target *model.Table, withReference bool) (string, error) {
	definition := csql.Quote(c.Name) + " "
	switch {
	case c.Type == model.TypeArray:
		definition += sqlType(c.ArrayOf, 0) + "[]"
	case target != nil:
		// foreign keys follow the type of the referenced primary key
		pkType := target.PrimaryKey().Type
		if pkType == model.TypeSerial {
			pkType = model.TypeInteger
		}
		definition += sqlType(pkType, target.PrimaryKey().Length)
	default:
		definition += sqlType(c.Type, c.Length)
	}
	if c.PrimaryKey {
		return definition + " PRIMARY KEY", nil
	}
	if !c.Null {
		definition += " NOT NULL"
	}
	if c.Unique {
		definition += " UNIQUE"
	}
	literal, err := sqlDefault(c)
	if err != nil {
		return "", err
	}
	if literal != "" {
		definition += " DEFAULT " + literal
	}
	if target != nil && withReference {
		definition += fmt.Sprintf(" REFERENCES %s (%s) ON DELETE CASCADE",
			a.db.Table(target.Name()), csql.Quote(target.PrimaryKey().Name))
	}
	return definition, nil
}

// createTables creates the tables of the admin and every table they reference, also
// when a referenced table is not shown in the admin. Referenced tables are created
// before the tables which reference them. Columns which were added to the model of
// an existing table are added to the table.
func (a *Admin) createTables(ctx context.Context) error {
	rlog := logger.Default()
	if err := a.users.CreateTable(ctx); err != nil {
		return fmt.Errorf("cannot create user table: %w", err)
	}
	if err := a.sessions.CreateTable(ctx); err != nil {
		return fmt.Errorf("cannot create session table: %w", err)
	}

	const (
		inProgress = 1
		done       = 2
	)
	state := map[string]int{
		a.users.Name():    done,
		a.sessions.Name(): done,
	}
	var create func(table *model.Table) error
	create = func(table *model.Table) error {
		state[table.Name()] = inProgress
		name := a.db.Table(table.Name())
		definitions := []string{}
		alterQuery := ""
		for _, c := range table.Columns() {
			var target *model.Table
			withReference := true
			if c.IsForeignKey() {
				var err error
				if target, err = c.References.Resolve(); err != nil {
					return fmt.Errorf("cannot resolve foreign key %s: %w", c, err)
				}
				if state[target.Name()] == 0 {
					if err := create(target); err != nil {
						return err
					}
				}
				withReference = state[target.Name()] != inProgress
			}
			definition, err := a.columnDefinition(c, target, withReference)
			if err != nil {
				return err
			}
			definitions = append(definitions, definition)
			if !c.PrimaryKey {
				alterQuery += fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;", name, definition)
			}
		}
		rlog.Debugln("create table", table.Name())
		_, err := a.db.ExecContext(ctx, "CREATE table IF NOT EXISTS "+name+"\n("+strings.Join(definitions, ",\n")+"\n);")
		if err != nil {
			return fmt.Errorf("cannot create table %s: %w", table.Name(), err)
		}
		if alterQuery != "" {
			if _, err = a.db.ExecContext(ctx, alterQuery); err != nil {
				return fmt.Errorf("cannot add columns to table %s: %w", table.Name(), err)
			}
		}
		state[table.Name()] = done
		return nil
	}
	for _, table := range a.schemaTables {
		if state[table.Name()] == 0 {
			if err := create(table); err != nil {
				return err
			}
		}
	}
	return nil
}
