package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/ratelimit"
)

// superuserValidator protects the user and session tables. Everybody may read them,
// only superusers may modify them.
func superuserValidator(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	if !access.AuthorizationFromContext(r.Context()).IsSuperuser() {
		return &HTTPError{Status: http.StatusMethodNotAllowed, Msg: "Only superusers can perform these actions."}
	}
	return nil
}

// hashPassword replaces a clear text password with its hash. An empty password
// leaves the stored password untouched. A value which already is a bcrypt hash is
// stored as it is, so superusers can carry over users with their hashes. Only
// superusers can write the user table.
func hashPassword(row Row) (Row, error) {
	password, ok := row["password"].(string)
	if !ok {
		return row, nil
	}
	if password == "" {
		delete(row, "password")
		return row, nil
	}
	hash, err := access.HashPassword(password)
	if err != nil {
		return nil, &HTTPError{Status: http.StatusBadRequest, Msg: err.Error()}
	}
	row["password"] = hash
	return row, nil
}

func hashPasswordOnSave(ctx context.Context, row Row) (Row, error) {
	return hashPassword(row)
}

func hashPasswordOnPatch(ctx context.Context, id string, row Row) (Row, error) {
	return hashPassword(row)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordChange struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// decodeBody reads the request into body, either from json or from a form
func decodeBody(r *http.Request, body interface{}, form func(get func(string) string)) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(r.Body).Decode(body)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	form(r.PostForm.Get)
	return nil
}

func (a *Admin) handlePublicRoutes(router *mux.Router, rateLimiter ratelimit.Provider) {
	rlog := logger.Default()
	if a.sessionAuth != nil {
		rlog.Debugln("  handle route: /public/login/ POST")
		router.Handle("/login/", ratelimit.Middleware(rateLimiter)(http.HandlerFunc(a.login))).Methods(http.MethodPost)
		rlog.Debugln("  handle route: /public/logout/ POST")
		router.HandleFunc("/logout/", a.logout).Methods(http.MethodPost)
	}
	rlog.Debugln("  handle route: /public/meta/ GET")
	router.HandleFunc("/meta/", a.meta).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /public/translations/ GET")
	router.HandleFunc("/translations/", a.translationList).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /public/translations/{code}/ GET")
	router.HandleFunc("/translations/{code}/", a.translation).Methods(http.MethodGet)
}

func (a *Admin) login(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	var body credentials
	err := decodeBody(r, &body, func(get func(string) string) {
		body.Username, body.Password = get("username"), get("password")
	})
	if err != nil || body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, err := a.sessionAuth.Login(w, r, body.Username, body.Password)
	if errors.Is(err, access.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "The username or password is incorrect.")
		return
	}
	if err != nil {
		rlog.WithError(err).Errorf("Error 6101: cannot log in %s", body.Username)
		http.Error(w, "Error 6101", http.StatusInternalServerError)
		return
	}
	rlog.Infoln("logged in", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{"username": user.Username})
}

func (a *Admin) logout(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if err := a.sessionAuth.Logout(w, r); err != nil {
		rlog.WithError(err).Errorf("Error 6102: cannot log out")
		http.Error(w, "Error 6102", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out"})
}

func (a *Admin) changePassword(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)
	if a.readOnly {
		readOnly(w)
		return
	}
	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil || auth.UserID == 0 {
		access.AuthFailed(w)
		return
	}

	var body passwordChange
	err := decodeBody(r, &body, func(get func(string) string) {
		body.CurrentPassword = get("current_password")
		body.NewPassword = get("new_password")
		body.ConfirmNewPassword = get("confirm_new_password")
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	err = a.users.ChangePassword(r.Context(), auth.UserID, body.CurrentPassword, body.NewPassword, body.ConfirmNewPassword)
	switch {
	case errors.Is(err, access.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect password.")
		return
	case errors.Is(err, access.ErrPasswordMismatch):
		writeError(w, http.StatusUnprocessableEntity, "Passwords do not match.")
		return
	case errors.Is(err, access.ErrPasswordTooShort):
		writeError(w, http.StatusUnprocessableEntity, "Password must be at least 6 characters long.")
		return
	case err != nil:
		rlog.WithError(err).Errorf("Error 6103: cannot change password")
		http.Error(w, "Error 6103", http.StatusInternalServerError)
		return
	}

	// all sessions of the user end with the old password
	if err = a.sessions.DeleteUser(r.Context(), auth.UserID); err != nil {
		rlog.WithError(err).Errorf("Error 6104: cannot delete sessions")
		http.Error(w, "Error 6104", http.StatusInternalServerError)
		return
	}
	if a.sessionAuth != nil {
		if err = a.sessionAuth.Logout(w, r); err != nil {
			rlog.WithError(err).Warnln("cannot clear session cookie")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password changed"})
}

func (a *Admin) meta(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	writeJSON(w, http.StatusOK, map[string]string{
		"kadmin_version": Version,
		"site_name":      a.siteName,
	})
}
