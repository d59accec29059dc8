package main

import (
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/kadmin/core/admin"
	"github.com/relabs-tech/kadmin/core/model"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "prints the tables of the admin with their visible columns and filters",
	Long: `prints the tables of the admin with their visible columns and filters

Shown tables are listed as "shown", tables which are included because a shown table
references them as "related". With no_auto_include_related, related tables are
listed as "excluded".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := readConfiguration(configPath)
		if err != nil {
			return err
		}
		return printTables(cmd.OutOrStdout(), config)
	},
}

func printTables(w io.Writer, config *Configuration) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}
	roots, related, err := config.shownTables(schema)
	if err != nil {
		return err
	}
	source := map[string]string{}
	for _, table := range roots {
		source[table.Name()] = "shown"
	}
	for _, table := range related {
		source[table.Name()] = "related"
		if config.NoAutoIncludeRelated {
			source[table.Name()] = "excluded"
		}
	}

	// media storages are not needed to print the configuration
	withoutMedia := *config
	withoutMedia.Admin = make([]TableOptions, len(config.Admin))
	for i, o := range config.Admin {
		o.Media = nil
		withoutMedia.Admin[i] = o
	}
	withoutMedia.NoAutoIncludeRelated = false
	configs, err := withoutMedia.tableConfigs(nil)
	if err != nil {
		return err
	}
	mediaColumns := map[string][]string{}
	for _, o := range config.Admin {
		for _, m := range o.Media {
			mediaColumns[o.Table] = append(mediaColumns[o.Table], m.Column)
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"table", "source", "references", "visible columns", "visible filters", "link", "order by", "menu group", "media"})
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	for _, tc := range configs {
		name := tc.Table().Name()
		media := mediaColumns[name]
		sort.Strings(media)
		table.Append([]string{
			name,
			source[name],
			foreignKeys(tc.Table()),
			strings.Join(tc.VisibleColumnNames(), ", "),
			strings.Join(tc.VisibleFilterNames(), ", "),
			tc.LinkColumn().Name,
			orderBy(tc),
			tc.MenuGroup(),
			strings.Join(media, ", "),
		})
	}
	table.Render()
	return nil
}

func orderBy(tc *admin.TableConfig) string {
	orders := tc.OrderBy()
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = o.String()
	}
	return strings.Join(parts, ", ")
}

// foreignKeys describes the foreign keys of table as column → target
func foreignKeys(table *model.Table) string {
	var parts []string
	for _, c := range table.ForeignKeys() {
		target, err := c.References.Resolve()
		if err != nil {
			parts = append(parts, c.Name+" → ?")
			continue
		}
		parts = append(parts, c.Name+" → "+target.Name())
	}
	return strings.Join(parts, ", ")
}
