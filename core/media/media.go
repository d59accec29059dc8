/*Package media stores files which are uploaded for media columns

A media column holds the key of a file, the file itself is stored by a Storage
outside of the database. There are two implementations: a local file system and
AWS S3.
*/
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/model"
)

// Storage defines the interface for a media storage
type Storage interface {
	// Column returns the column the storage is bound to
	Column() *model.Column
	// Location identifies where files are stored. Two storages with the same
	// location would overwrite each other's files.
	Location() string
	// StoreFile stores the content of file and returns its key
	StoreFile(ctx context.Context, fileName string, file io.Reader, auth *access.Authorization) (string, error)
	// GenerateFileURL returns an URL from which the file can be downloaded. rootURL is
	// the URL under which the admin serves the files of local storages.
	GenerateFileURL(ctx context.Context, key, rootURL string, auth *access.Authorization) (string, error)
	// GetFile returns the content of the file with key
	GetFile(ctx context.Context, key string) (io.ReadCloser, error)
	// DeleteFile deletes the file with key. The admin calls it for the media columns
	// of deleted rows; deleting a missing file is not an error.
	DeleteFile(ctx context.Context, key string) error
}

// ValidationError is returned when a file is rejected
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// DefaultAllowedExtensions are the file extensions which are accepted unless
// configured otherwise
var DefaultAllowedExtensions = []string{
	"csv", "doc", "docx", "gif", "jpeg", "jpg", "json", "md", "mov", "mp3", "mp4",
	"odp", "ods", "odt", "pdf", "png", "ppt", "pptx", "rtf", "svg", "tif", "tiff",
	"txt", "wav", "webm", "webp", "xls", "xlsx", "zip",
}

// Options are common options of all storages
type Options struct {
	// AllowedExtensions are the accepted file extensions, without dot. Defaults
	// to DefaultAllowedExtensions.
	AllowedExtensions []string
}

func (o Options) allowed() []string {
	if len(o.AllowedExtensions) == 0 {
		return DefaultAllowedExtensions
	}
	return o.AllowedExtensions
}

const maxNameLength = 50

// sanitize replaces all characters of name which are not letters, digits,
// '-', '_', '(' or ')' with '_'
func sanitize(name string) string {
	b := strings.Builder{}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '(', r == ')':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}

// GenerateFileKey returns a unique key for fileName of the form
// <sanitized name>-<uuid>.<extension>. The extension must be allowed.
func GenerateFileKey(fileName string, options Options) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ext == "" {
		return "", &ValidationError{Msg: "The file has no extension."}
	}
	allowed := false
	for _, a := range options.allowed() {
		if ext == strings.ToLower(a) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &ValidationError{Msg: fmt.Sprintf("This file type (.%s) is not allowed.", ext)}
	}
	name := sanitize(strings.TrimSuffix(path.Base(fileName), path.Ext(fileName)))
	return name + "-" + uuid.New().String() + "." + ext, nil
}

// ValidateKey rejects keys which could escape the storage
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return &ValidationError{Msg: "invalid file key"}
	}
	return nil
}
