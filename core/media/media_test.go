package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kadmin/core/model"
)

func posterColumn() *model.Column {
	movie := model.MustNewTable("movie", []*model.Column{
		{Name: "poster", Type: model.TypeVarchar},
	})
	c, _ := movie.Column("poster")
	return c
}

func TestGenerateFileKey(t *testing.T) {
	key, err := GenerateFileKey("My Poster (final).PNG", Options{})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^My_Poster_\(final\)-[0-9a-f-]{36}\.png$`), key)

	other, err := GenerateFileKey("My Poster (final).PNG", Options{})
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = GenerateFileKey("script.exe", Options{})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = GenerateFileKey("README", Options{})
	assert.True(t, errors.As(err, &verr))

	_, err = GenerateFileKey("poster.png", Options{AllowedExtensions: []string{"jpg"}})
	assert.True(t, errors.As(err, &verr))

	key, err = GenerateFileKey("../../"+strings.Repeat("a", 80)+".txt", Options{})
	require.NoError(t, err)
	assert.NoError(t, ValidateKey(key))
	assert.True(t, strings.HasPrefix(key, strings.Repeat("a", maxNameLength)+"-"))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("poster-1.png"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey("../secret"))
	assert.Error(t, ValidateKey("a/b.png"))
	assert.Error(t, ValidateKey(`a\b.png`))
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "posters")

	var storage Storage
	local, err := NewLocal(posterColumn(), dir, Options{})
	require.NoError(t, err)
	storage = local
	assert.Equal(t, "movie.poster", storage.Column().String())
	assert.Equal(t, "file://"+dir, storage.Location())

	key, err := storage.StoreFile(ctx, "poster.jpg", strings.NewReader("image data"), nil)
	require.NoError(t, err)

	file, err := storage.GetFile(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	file.Close()
	require.NoError(t, err)
	assert.Equal(t, "image data", string(data))

	url, err := storage.GenerateFileURL(ctx, key, "/api/media-files/movie/poster/", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/media-files/movie/poster/"+key, url)

	_, err = storage.GetFile(ctx, "../"+key)
	assert.Error(t, err)

	require.NoError(t, storage.DeleteFile(ctx, key))
	_, err = os.Stat(filepath.Join(dir, key))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, storage.DeleteFile(ctx, key), "deleting a missing file is not an error")

	_, err = storage.StoreFile(ctx, "virus.exe", strings.NewReader("MZ"), nil)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
