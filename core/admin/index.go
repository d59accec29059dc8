package admin

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/relabs-tech/kadmin/core/logger"
)

//go:embed static/index.html
var staticFiles embed.FS

var indexTemplate = template.Must(template.ParseFS(staticFiles, "static/index.html"))

func (a *Admin) index(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	var page bytes.Buffer
	err := indexTemplate.Execute(&page, struct {
		SiteName string
		Version  string
	}{a.siteName, Version})
	if err != nil {
		rlog.WithError(err).Errorf("Error 6201: cannot render index")
		http.Error(w, "Error 6201", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.Bytes())
}
