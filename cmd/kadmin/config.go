package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/kadmin/core/admin"
	"github.com/relabs-tech/kadmin/core/media"
	"github.com/relabs-tech/kadmin/core/model"
)

// Service holds the configuration for the admin service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=public" description:"the database schema of all tables"`
	Port             int    `env:"PORT,default=3000" description:"the port the admin listens on"`
	SiteName         string `env:"SITE_NAME,optional" description:"the name shown in the admin"`
	SessionSecret    string `env:"SESSION_SECRET,optional" description:"the key to sign session cookies, at least 32 bytes"`
	Production       bool   `env:"PRODUCTION,default=false" description:"marks cookies as secure"`
	ReadOnly         bool   `env:"READ_ONLY,default=false" description:"rejects all modifications"`
	AllowedHosts     string `env:"ALLOWED_HOSTS,optional" description:"comma separated list of trusted origins"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,optional" description:"comma separated kafka brokers, enables change notifications"`
	KafkaTopic       string `env:"KAFKA_TOPIC,optional" description:"the topic of change notifications"`
	AWSAccessID      string `env:"AWS_ACCESS_KEY_ID,optional" description:"access key id of S3 media storages"`
	AWSAccessKey     string `env:"AWS_SECRET_ACCESS_KEY,optional" description:"secret access key of S3 media storages"`
	AWSRegion        string `env:"AWS_REGION,optional" description:"default region of S3 media storages"`
	AdminUsername    string `env:"ADMIN_USERNAME,optional" description:"username of a superuser created at startup"`
	AdminPassword    string `env:"ADMIN_PASSWORD,optional" description:"password of the superuser created at startup"`
}

func decodeService() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, err
	}
	return service, nil
}

// splitList splits a comma separated list and drops empty elements
func splitList(s string) []string {
	var result []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			result = append(result, e)
		}
	}
	return result
}

// Configuration is the JSON configuration of the admin: the data model and how
// each table is presented.
//
// Example:
//
//	{
//	  "site_name": "Movies",
//	  "tables": [{"table": "movie", "columns": [{"name": "name", "type": "varchar"}]}],
//	  "show": ["movie"],
//	  "admin": [{"table": "movie", "visible_columns": ["id", "name"], "menu_group": "Movies"}]
//	}
//
// Show names the tables of the admin, all tables if it is empty. Tables referenced by
// shown tables are included as well, unless no_auto_include_related is set.
type Configuration struct {
	model.Configuration
	Show                 []string            `json:"show"`
	SiteName             string              `json:"site_name"`
	PageSize             int                 `json:"page_size"`
	NoAutoIncludeRelated bool                `json:"no_auto_include_related"`
	IncludeAuthTables    bool                `json:"include_auth_tables"`
	SidebarLinks         []admin.SidebarLink `json:"sidebar_links"`
	Admin                []TableOptions      `json:"admin"`
}

// TableOptions configures the presentation of one table
type TableOptions struct {
	Table                 string         `json:"table"`
	VisibleColumns        []string       `json:"visible_columns"`
	ExcludeVisibleColumns []string       `json:"exclude_visible_columns"`
	VisibleFilters        []string       `json:"visible_filters"`
	ExcludeVisibleFilters []string       `json:"exclude_visible_filters"`
	RichTextColumns       []string       `json:"rich_text_columns"`
	LinkColumn            string         `json:"link_column"`
	OrderBy               []string       `json:"order_by"`
	TimeResolution        map[string]int `json:"time_resolution"`
	MenuGroup             string         `json:"menu_group"`
	Media                 []MediaOptions `json:"media"`
}

// MediaOptions configures the media storage of a column. Either Folder or Bucket
// must be set.
type MediaOptions struct {
	Column            string   `json:"column"`
	Folder            string   `json:"folder"`
	Bucket            string   `json:"bucket"`
	Region            string   `json:"region"`
	KeyPrefix         string   `json:"key_prefix"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

func readConfiguration(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := &Configuration{}
	if err = json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse error in configuration %s: %w", path, err)
	}
	return config, nil
}

// shownTables returns the tables named in Show, or all tables, and the tables they
// reference which are not shown themselves
func (config *Configuration) shownTables(schema *model.Schema) (roots, related []*model.Table, err error) {
	if len(config.Show) == 0 {
		roots = schema.Tables()
	}
	for _, name := range config.Show {
		table, ok := schema.Table(name)
		if !ok {
			return nil, nil, fmt.Errorf("cannot show unknown table %s", name)
		}
		roots = append(roots, table)
	}
	closure, err := model.Closure(roots)
	if err != nil {
		return nil, nil, err
	}
	shown := map[*model.Table]bool{}
	for _, table := range roots {
		shown[table] = true
	}
	for _, table := range closure {
		if !shown[table] {
			related = append(related, table)
		}
	}
	return roots, related, nil
}

// tableConfigs creates the data model and a table configuration for every table of
// the admin, sorted by name. Tables without admin options get the default
// configuration.
func (config *Configuration) tableConfigs(service *Service) ([]*admin.TableConfig, error) {
	schema, err := config.Schema()
	if err != nil {
		return nil, err
	}
	options := map[string]TableOptions{}
	for _, o := range config.Admin {
		if _, ok := schema.Table(o.Table); !ok {
			return nil, fmt.Errorf("admin options for unknown table %s", o.Table)
		}
		if _, ok := options[o.Table]; ok {
			return nil, fmt.Errorf("admin options for table %s given more than once", o.Table)
		}
		options[o.Table] = o
	}

	tables, related, err := config.shownTables(schema)
	if err != nil {
		return nil, err
	}
	if !config.NoAutoIncludeRelated {
		tables = append(tables, related...)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name() < tables[j].Name() })
	configs := make([]*admin.TableConfig, 0, len(tables))
	for _, table := range tables {
		tableOptions, err := options[table.Name()].tableOptions(table, service)
		if err != nil {
			return nil, err
		}
		tc, err := admin.NewTableConfig(table, tableOptions...)
		if err != nil {
			return nil, err
		}
		configs = append(configs, tc)
	}
	return configs, nil
}

func (o TableOptions) tableOptions(table *model.Table, service *Service) ([]admin.TableOption, error) {
	var options []admin.TableOption
	if len(o.VisibleColumns) > 0 {
		options = append(options, admin.WithVisibleColumns(o.VisibleColumns...))
	}
	if len(o.ExcludeVisibleColumns) > 0 {
		options = append(options, admin.WithExcludeVisibleColumns(o.ExcludeVisibleColumns...))
	}
	if len(o.VisibleFilters) > 0 {
		options = append(options, admin.WithVisibleFilters(o.VisibleFilters...))
	}
	if len(o.ExcludeVisibleFilters) > 0 {
		options = append(options, admin.WithExcludeVisibleFilters(o.ExcludeVisibleFilters...))
	}
	if len(o.RichTextColumns) > 0 {
		options = append(options, admin.WithRichTextColumns(o.RichTextColumns...))
	}
	if o.LinkColumn != "" {
		options = append(options, admin.WithLinkColumn(o.LinkColumn))
	}
	if len(o.OrderBy) > 0 {
		options = append(options, admin.WithOrderBy(o.OrderBy...))
	}
	for column, seconds := range o.TimeResolution {
		options = append(options, admin.WithTimeResolution(column, seconds))
	}
	if o.MenuGroup != "" {
		options = append(options, admin.WithMenuGroup(o.MenuGroup))
	}

	var storages []media.Storage
	for _, m := range o.Media {
		storage, err := m.storage(table, service)
		if err != nil {
			return nil, err
		}
		storages = append(storages, storage)
	}
	if len(storages) > 0 {
		options = append(options, admin.WithMediaStorage(storages...))
	}
	return options, nil
}

func (m MediaOptions) storage(table *model.Table, service *Service) (media.Storage, error) {
	column, ok := table.Column(m.Column)
	if !ok {
		return nil, fmt.Errorf("media storage for unknown column %s of %s", m.Column, table.Name())
	}
	options := media.Options{AllowedExtensions: m.AllowedExtensions}
	switch {
	case m.Folder != "" && m.Bucket != "":
		return nil, fmt.Errorf("media storage of %s has both a folder and a bucket", column)
	case m.Folder != "":
		return media.NewLocal(column, m.Folder, options)
	case m.Bucket != "":
		region := m.Region
		if region == "" && service != nil {
			region = service.AWSRegion
		}
		s3Config := media.S3Configuration{
			AWSRegion:     region,
			AWSBucketName: m.Bucket,
			KeyPrefix:     m.KeyPrefix,
		}
		if service != nil {
			s3Config.AccessID, s3Config.AccessKey = service.AWSAccessID, service.AWSAccessKey
		}
		return media.NewS3(column, s3Config, options)
	}
	return nil, fmt.Errorf("media storage of %s needs a folder or a bucket", column)
}
