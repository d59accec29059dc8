package admin

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/logger"
)

var (
	// Version is the version of the current build, set with
	// -ldflags "-X github.com/relabs-tech/kadmin/core/admin.Version=..."
	Version = "unset"
)

func (a *Admin) handleVersion(router *mux.Router) {
	logger.Default().Debugln("  handle version route: /api/version/ GET")
	router.HandleFunc("/version/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	}).Methods(http.MethodOptions, http.MethodGet)
}
