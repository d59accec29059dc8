package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

// Local stores files in a folder of the local file system
type Local struct {
	column     *model.Column
	baseFolder string
	options    Options
}

// NewLocal returns a new local storage for column which stores files in baseFolder.
// The folder is created if it does not exist yet.
func NewLocal(column *model.Column, baseFolder string, options Options) (*Local, error) {
	if column == nil {
		return nil, fmt.Errorf("local media storage requires a column")
	}
	abs, err := filepath.Abs(baseFolder)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("cannot create media folder %s: %w", abs, err)
	}
	return &Local{column: column, baseFolder: abs, options: options}, nil
}

// Column implements Storage
func (l *Local) Column() *model.Column {
	return l.column
}

// Location implements Storage
func (l *Local) Location() string {
	return "file://" + l.baseFolder
}

// StoreFile implements Storage
func (l *Local) StoreFile(ctx context.Context, fileName string, file io.Reader, auth *access.Authorization) (string, error) {
	key, err := GenerateFileKey(fileName, l.options)
	if err != nil {
		return "", err
	}
	dstFile, err := os.OpenFile(filepath.Join(l.baseFolder, key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	defer dstFile.Close()
	if _, err = io.Copy(dstFile, file); err != nil {
		os.Remove(dstFile.Name())
		return "", err
	}
	logger.FromContext(ctx).Infof("stored media file '%s' for %s", key, l.column)
	return key, nil
}

// GenerateFileURL implements Storage. Local files are served by the admin under rootURL.
func (l *Local) GenerateFileURL(ctx context.Context, key, rootURL string, auth *access.Authorization) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return rootURL + url.PathEscape(key), nil
}

// GetFile implements Storage
func (l *Local) GetFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(l.baseFolder, key))
}

// DeleteFile implements Storage
func (l *Local) DeleteFile(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.baseFolder, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
