package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core/admin"
)

func moviesConfiguration(t *testing.T) *Configuration {
	t.Helper()
	config, err := readConfiguration(filepath.Join("..", "..", "examples", "movies", "kadmin.json"))
	require.NoError(t, err)
	for i := range config.Admin {
		for j := range config.Admin[i].Media {
			config.Admin[i].Media[j].Folder = t.TempDir()
		}
	}
	return config
}

func writeConfiguration(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kadmin.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func configNames(configs []*admin.TableConfig) []string {
	names := make([]string, len(configs))
	for i, tc := range configs {
		names[i] = tc.Table().Name()
	}
	return names
}

func TestTableConfigs(t *testing.T) {
	config := moviesConfiguration(t)
	assert.Equal(t, "Movie Admin", config.SiteName)
	assert.Equal(t, 20, config.PageSize)
	assert.Len(t, config.SidebarLinks, 2)

	configs, err := config.tableConfigs(&Service{})
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "movie", "studio"}, configNames(configs), "related tables are included")

	director, movie, studio := configs[0], configs[1], configs[2]
	assert.Equal(t, []string{"id", "name", "rating", "director", "poster"}, movie.VisibleColumnNames())
	assert.Equal(t, []string{"name", "rating", "director"}, movie.VisibleFilterNames())
	assert.Equal(t, "name", movie.LinkColumn().Name)
	assert.Equal(t, []string{"description"}, movie.RichTextColumnNames())
	assert.Equal(t, []string{"poster"}, movie.MediaColumnNames())
	assert.Equal(t, map[string]int{"release_date": 60}, movie.TimeResolution())
	assert.Equal(t, "-popularity", movie.OrderBy()[0].String())
	assert.Equal(t, "Movies", movie.MenuGroup())

	assert.NotContains(t, director.VisibleColumnNames(), "years_nominated")
	assert.Equal(t, []string{"photo"}, director.MediaColumnNames())
	assert.NotContains(t, studio.VisibleFilterNames(), "facilities")
	assert.Contains(t, studio.VisibleColumnNames(), "facilities")
	assert.Equal(t, "Booking", studio.MenuGroup())

	config.NoAutoIncludeRelated = true
	configs, err = config.tableConfigs(&Service{})
	require.NoError(t, err)
	assert.Equal(t, []string{"movie"}, configNames(configs))

	config.Show = nil
	configs, err = config.tableConfigs(&Service{})
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "movie", "studio"}, configNames(configs), "all tables are shown")
}

func TestTableConfigs_Invalid(t *testing.T) {
	const tables = `"tables": [
		{"table": "director", "columns": [{"name": "name", "type": "varchar"}]},
		{"table": "movie", "columns": [{"name": "name", "type": "varchar"}, {"name": "director", "references": "director"}]}
	]`
	tests := []struct {
		name   string
		config string
	}{
		{"unknown shown table", `{` + tables + `, "show": ["actor"]}`},
		{"unknown admin table", `{` + tables + `, "admin": [{"table": "actor"}]}`},
		{"duplicate admin table", `{` + tables + `, "admin": [{"table": "movie"}, {"table": "movie"}]}`},
		{"columns and excluded columns", `{` + tables + `, "admin": [{"table": "movie", "visible_columns": ["name"], "exclude_visible_columns": ["id"]}]}`},
		{"filters and excluded filters", `{` + tables + `, "admin": [{"table": "movie", "visible_filters": ["name"], "exclude_visible_filters": ["id"]}]}`},
		{"foreign key link column", `{` + tables + `, "admin": [{"table": "movie", "link_column": "director"}]}`},
		{"unknown media column", `{` + tables + `, "admin": [{"table": "movie", "media": [{"column": "poster", "folder": "x"}]}]}`},
		{"media without storage", `{` + tables + `, "admin": [{"table": "movie", "media": [{"column": "name"}]}]}`},
		{"media with two storages", `{` + tables + `, "admin": [{"table": "movie", "media": [{"column": "name", "folder": "x", "bucket": "y"}]}]}`},
		{"unknown reference", `{"tables": [{"table": "movie", "columns": [{"name": "director", "references": "director"}]}]}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config, err := readConfiguration(writeConfiguration(t, test.config))
			require.NoError(t, err)
			_, err = config.tableConfigs(&Service{})
			assert.Error(t, err)
		})
	}

	_, err := readConfiguration(writeConfiguration(t, `{"tables": [`))
	assert.Error(t, err)
	_, err = readConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPrintTables(t *testing.T) {
	config := moviesConfiguration(t)

	var buf bytes.Buffer
	require.NoError(t, printTables(&buf, config))
	out := buf.String()
	assert.Contains(t, out, "VISIBLE COLUMNS")
	assert.Contains(t, out, "director → director, studio → studio")
	assert.Contains(t, out, "id, name, rating, director, poster")
	assert.Contains(t, out, "-popularity, name")
	assert.Contains(t, out, "related")
	assert.NotContains(t, out, "excluded")

	config.NoAutoIncludeRelated = true
	buf.Reset()
	require.NoError(t, printTables(&buf, config))
	assert.Contains(t, buf.String(), "excluded")
}

func TestBuilder(t *testing.T) {
	config := moviesConfiguration(t)
	service := &Service{
		SiteName:      "Cinema",
		SessionSecret: "a secret of exactly thirty two b",
		AllowedHosts:  "admin.example.com, ,cinema.example.com",
		ReadOnly:      true,
	}
	bb, err := builder(service, config)
	require.NoError(t, err)
	assert.Equal(t, "Cinema", bb.SiteName, "the environment wins over the file")
	assert.Equal(t, []string{"admin.example.com", "cinema.example.com"}, bb.AllowedHosts)
	assert.True(t, bb.ReadOnly)
	assert.True(t, bb.UpdateSchema)
	assert.True(t, bb.IncludeAuthTables)
	assert.Equal(t, 20, bb.PageSize)
	assert.Len(t, bb.Tables, 3)

	service.SiteName = ""
	bb, err = builder(service, config)
	require.NoError(t, err)
	assert.Equal(t, "Movie Admin", bb.SiteName)
}

func TestDecodeService(t *testing.T) {
	t.Setenv("POSTGRES", "host=localhost port=5432 user=postgres dbname=postgres sslmode=disable")
	t.Setenv("SESSION_SECRET", "a secret of exactly thirty two b")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")
	service, err := decodeService()
	require.NoError(t, err)
	assert.Equal(t, 3000, service.Port)
	assert.Equal(t, "public", service.PostgresSchema)
	assert.False(t, service.Production)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, splitList(service.KafkaBrokers))
}
