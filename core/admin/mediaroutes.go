package admin

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/media"
)

const maxUploadMemory = 32 << 20

// mediaFilesURL returns the URL under which the files of a local media column are served
func mediaFilesURL(table, column string) string {
	return "./api/media-files/" + table + "/" + column + "/"
}

func (a *Admin) handleMediaRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("  handle media routes: /api/media/ POST")
	router.HandleFunc("/media/", a.storeFile).Methods(http.MethodPost)
	rlog.Debugln("  handle media routes: /api/media/generate-file-url/ POST")
	router.HandleFunc("/media/generate-file-url/", a.generateFileURL).Methods(http.MethodPost)
	rlog.Debugln("  handle media routes: /api/media-files/{table}/{column}/{key} GET")
	router.HandleFunc("/media-files/{table}/{column}/{key}", a.mediaFile).Methods(http.MethodGet)
}

// mediaStorage looks up the storage of a media column. It answers the request and
// returns false if there is none.
func (a *Admin) mediaStorage(w http.ResponseWriter, tableName, columnName string) (media.Storage, bool) {
	tc, ok := a.tableMap[tableName]
	if !ok {
		writeError(w, http.StatusNotFound, "No such table found.")
		return nil, false
	}
	if len(tc.MediaStorages()) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "No media columns are configured for this table.")
		return nil, false
	}
	if _, ok := tc.Table().Column(columnName); !ok {
		writeError(w, http.StatusNotFound, "No such column found.")
		return nil, false
	}
	storage, ok := tc.MediaStorage(columnName)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "This column is not configured as a media_column.")
		return nil, false
	}
	return storage, true
}

// mediaError answers validation errors of a storage with 422
func mediaError(w http.ResponseWriter, r *http.Request, err error, code string) {
	var validationErr *media.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusUnprocessableEntity, validationErr.Msg)
		return
	}
	logger.FromContext(r.Context()).WithError(err).Errorf("Error %s: media storage failure", code)
	http.Error(w, "Error "+code, http.StatusInternalServerError)
}

func (a *Admin) storeFile(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	if a.readOnly {
		readOnly(w)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	storage, ok := a.mediaStorage(w, r.FormValue("table_name"), r.FormValue("column_name"))
	if !ok {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is missing")
		return
	}
	defer file.Close()

	key, err := storage.StoreFile(r.Context(), header.Filename, file, access.AuthorizationFromContext(r.Context()))
	if err != nil {
		mediaError(w, r, err, "6301")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_key": key})
}

type fileURLRequest struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	FileKey    string `json:"file_key"`
}

func (a *Admin) generateFileURL(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	if a.readOnly {
		readOnly(w)
		return
	}
	var body fileURLRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	storage, ok := a.mediaStorage(w, body.TableName, body.ColumnName)
	if !ok {
		return
	}
	url, err := storage.GenerateFileURL(r.Context(), body.FileKey, mediaFilesURL(body.TableName, body.ColumnName),
		access.AuthorizationFromContext(r.Context()))
	if err != nil {
		mediaError(w, r, err, "6302")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_url": url})
}

// mediaFile serves a stored file. Uploaded files are untrusted, so the content
// security policy forbids everything.
func (a *Admin) mediaFile(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	params := mux.Vars(r)
	storage, ok := a.mediaStorage(w, params["table"], params["column"])
	if !ok {
		return
	}
	key := params["key"]
	if media.ValidateKey(key) != nil {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}
	file, err := storage.GetFile(r.Context(), key)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}
	if err != nil {
		mediaError(w, r, err, "6303")
		return
	}
	defer file.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err = io.Copy(w, file); err != nil {
		rlog.WithError(err).Warnln("cannot send media file", key)
	}
}
