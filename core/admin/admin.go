/*Package admin assembles the admin from table configurations

The admin consists of a single page application shell, public routes for login,
logout, meta data and translations, and authenticated REST routes under /api for
all configured tables and forms.

A minimal admin:

	a, err := admin.New(&admin.Builder{
		DB:          db,
		Router:      router,
		PlainTables: schema.Tables(),
	})

Tables which are referenced through foreign keys by configured tables are added
automatically, unless NoAutoIncludeRelated is set.
*/
package admin

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kadmin/core"
	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/csrf"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
	"github.com/relabs-tech/kadmin/core/ratelimit"
	"github.com/relabs-tech/kadmin/core/sessions"
)

// SidebarLink is a custom link in the sidebar of the admin
type SidebarLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Builder is a builder helper for the Admin
type Builder struct {
	// Tables are the configured tables
	Tables []*TableConfig
	// PlainTables are tables which are shown with the default configuration
	PlainTables []*model.Table
	// Forms are custom forms
	Forms []*FormConfig
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// UpdateSchema creates all tables which do not exist yet
	UpdateSchema bool
	// NoAutoIncludeRelated disables adding the tables which are referenced by configured tables
	NoAutoIncludeRelated bool
	// IncludeAuthTables shows the user and session tables in the admin. Only superusers
	// can modify them.
	IncludeAuthTables bool
	// UserTable is the name of the user table, defaults to access.DefaultUserTable
	UserTable string
	// SessionTable is the name of the session table, defaults to sessions.DefaultTable
	SessionTable string
	// PageSize is the default page size of list views, defaults to 15
	PageSize int
	// ReadOnly rejects all modifications with 405
	ReadOnly bool
	// SiteName is shown in the admin, defaults to "Kadmin"
	SiteName string
	// Production marks cookies as secure
	Production bool
	// SessionSecret signs the session cookie. This is mandatory unless AuthMiddleware is set.
	SessionSecret []byte
	// SessionExpiry defaults to one hour
	SessionExpiry time.Duration
	// MaxSessionExpiry defaults to seven days
	MaxSessionExpiry time.Duration
	// IncreaseExpiry defaults to 20 minutes
	IncreaseExpiry time.Duration
	// RateLimiter limits login attempts, defaults to 20 requests per 300 seconds
	RateLimiter ratelimit.Provider
	// DefaultLanguageCode defaults to "auto", which uses the language of the browser
	DefaultLanguageCode string
	// Translations replace the built-in translations
	Translations []Translation
	// AllowedHosts are trusted origins for CSRF protection
	AllowedHosts []string
	// SidebarLinks are custom links in the sidebar
	SidebarLinks []SidebarLink
	// AuthMiddleware replaces the session authentication, e.g. access.NewJwtMiddelware
	AuthMiddleware mux.MiddlewareFunc
	// Notifier receives all modifications of rows. This is optional.
	Notifier core.Notifier
}

// Admin is the assembled admin
type Admin struct {
	router              *mux.Router
	db                  *csql.DB
	notifier            core.Notifier
	tables              []*TableConfig
	schemaTables        []*model.Table // the tables of the admin and every table they reference
	tableMap            map[string]*TableConfig
	cruds               map[string]*crud
	forms               []*FormConfig
	formMap             map[string]*FormConfig
	users               *access.Users
	sessions            *sessions.Store
	sessionAuth         *access.SessionAuth
	pageSize            int
	readOnly            bool
	siteName            string
	defaultLanguageCode string
	translations        []Translation
	sidebarLinks        []SidebarLink
}

// New realizes the actual admin. It creates the sql tables (if requested) and adds
// the routes to the router. All configuration errors are reported here.
func New(bb *Builder) (*Admin, error) {
	if bb.DB == nil {
		return nil, &ConfigError{Msg: "DB is missing"}
	}
	if bb.Router == nil {
		return nil, &ConfigError{Msg: "Router is missing"}
	}
	if bb.AuthMiddleware == nil && len(bb.SessionSecret) == 0 {
		return nil, &ConfigError{Msg: "SessionSecret is missing"}
	}

	a := &Admin{
		router:              bb.Router,
		db:                  bb.DB,
		notifier:            bb.Notifier,
		tableMap:            map[string]*TableConfig{},
		cruds:               map[string]*crud{},
		formMap:             map[string]*FormConfig{},
		users:               access.NewUsers(bb.DB, bb.UserTable),
		sessions:            sessions.New(bb.DB, bb.SessionTable),
		pageSize:            bb.PageSize,
		readOnly:            bb.ReadOnly,
		siteName:            bb.SiteName,
		defaultLanguageCode: bb.DefaultLanguageCode,
		translations:        bb.Translations,
		sidebarLinks:        bb.SidebarLinks,
	}
	if a.pageSize <= 0 {
		a.pageSize = 15
	}
	if a.siteName == "" {
		a.siteName = "Kadmin"
	}
	if a.defaultLanguageCode == "" {
		a.defaultLanguageCode = "auto"
	}
	if len(a.translations) == 0 {
		a.translations = builtinTranslations()
	}

	if err := a.configureTables(bb); err != nil {
		return nil, err
	}
	if err := a.configureForms(bb.Forms); err != nil {
		return nil, err
	}

	if bb.UpdateSchema {
		if err := a.createTables(context.Background()); err != nil {
			return nil, err
		}
	}

	expiry, maxExpiry, increase := bb.SessionExpiry, bb.MaxSessionExpiry, bb.IncreaseExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	if maxExpiry <= 0 {
		maxExpiry = 7 * 24 * time.Hour
	}
	if increase <= 0 {
		increase = 20 * time.Minute
	}
	if len(bb.SessionSecret) > 0 {
		a.sessionAuth = access.NewSessionAuth(&access.SessionAuthBuilder{
			Sessions:       a.sessions,
			Users:          a.users,
			Secret:         bb.SessionSecret,
			Secure:         bb.Production,
			Expiry:         expiry,
			MaxExpiry:      maxExpiry,
			IncreaseExpiry: increase,
		})
	}

	authMiddleware := bb.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = a.sessionAuth.Middleware()
	}
	rateLimiter := bb.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewInMemory(20, 300*time.Second, 0)
	}

	a.handleRoutes(authMiddleware, rateLimiter, bb.AllowedHosts)
	return a, nil
}

// configureTables creates the table configurations, adds related tables and
// checks the result for consistency
func (a *Admin) configureTables(bb *Builder) error {
	rlog := logger.Default()

	configs := append([]*TableConfig{}, bb.Tables...)
	for _, table := range bb.PlainTables {
		tc, err := NewTableConfig(table)
		if err != nil {
			return err
		}
		configs = append(configs, tc)
	}
	if bb.IncludeAuthTables {
		configs = append(configs, MustNewTableConfig(a.users.Table()), MustNewTableConfig(a.sessions.Table()))
	}

	byName := map[string]*TableConfig{}
	for _, tc := range configs {
		name := tc.Table().Name()
		if _, ok := byName[name]; ok {
			return &ConfigError{Table: name, Msg: "table is configured more than once"}
		}
		byName[name] = tc
	}

	// resolve all references once, so that broken references surface now and not
	// at request time
	roots := make([]*model.Table, len(configs))
	for i, tc := range configs {
		roots[i] = tc.Table()
	}
	related, err := model.Closure(roots)
	if err != nil {
		return fmt.Errorf("cannot resolve related tables: %w", err)
	}
	a.schemaTables = related
	if !bb.NoAutoIncludeRelated {
		for _, table := range related {
			if _, ok := byName[table.Name()]; ok {
				continue
			}
			rlog.Debugln("auto include related table:", table.Name())
			tc, err := NewTableConfig(table)
			if err != nil {
				return err
			}
			configs = append(configs, tc)
			byName[table.Name()] = tc
		}
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Table().Name() < configs[j].Table().Name()
	})

	locations := map[string]string{}
	for i, tc := range configs {
		name := tc.Table().Name()
		if name == a.users.Name() || name == a.sessions.Name() {
			tc = tc.withEveryValidator(superuserValidator)
		}
		if name == a.users.Name() {
			tc = tc.withSaveHook(hashPasswordOnSave, hashPasswordOnPatch)
		}
		configs[i] = tc

		for _, c := range tc.Table().Columns() {
			if c.Secret && c.Required {
				rlog.Warnf("%s is using secret and required column options which are incompatible. "+
					"You may encounter unexpected behavior when using this table within the admin.", c)
			}
		}
		for _, storage := range tc.MediaStorages() {
			location := storage.Location()
			if other, ok := locations[location]; ok {
				return &ConfigError{Table: name, Msg: fmt.Sprintf(
					"media storage is misconfigured, %s and %s are saving to the same location", other, storage.Column())}
			}
			locations[location] = storage.Column().String()
		}
		a.tableMap[name] = tc
	}
	a.tables = configs

	for _, tc := range configs {
		c, err := newCrud(a, tc)
		if err != nil {
			return err
		}
		a.cruds[tc.Table().Name()] = c
	}
	linkReferences(a.cruds)
	return nil
}

func (a *Admin) configureForms(forms []*FormConfig) error {
	for _, form := range forms {
		if _, ok := a.formMap[form.Slug()]; ok {
			return &ConfigError{Msg: fmt.Sprintf("form %s is configured more than once", form.Slug())}
		}
		a.formMap[form.Slug()] = form
		a.forms = append(a.forms, form)
	}
	return nil
}

// Tables returns the configurations of all tables of the admin, sorted by name
func (a *Admin) Tables() []*TableConfig {
	return append([]*TableConfig{}, a.tables...)
}

// Table returns the configuration of the named table
func (a *Admin) Table(name string) (*TableConfig, bool) {
	tc, ok := a.tableMap[name]
	return tc, ok
}

// Users returns the user table of the admin
func (a *Admin) Users() *access.Users {
	return a.users
}

// Sessions returns the session store of the admin
func (a *Admin) Sessions() *sessions.Store {
	return a.sessions
}

func (a *Admin) handleRoutes(authMiddleware mux.MiddlewareFunc, rateLimiter ratelimit.Provider, allowedHosts []string) {
	rlog := logger.Default()
	rlog.Debugln("admin:", a.siteName)

	rlog.Debugln("  handle route: / GET")
	a.router.Handle("/", handlers.CompressHandler(http.HandlerFunc(a.index))).Methods(http.MethodGet)

	public := a.router.PathPrefix("/public").Subrouter()
	public.Use(csrf.Middleware(allowedHosts))
	a.handlePublicRoutes(public, rateLimiter)

	api := a.router.PathPrefix("/api").Subrouter()
	api.Use(csrf.Middleware(allowedHosts))
	api.Use(authMiddleware)
	api.Use(access.RequireRole(access.RoleAdmin))

	rlog.Debugln("  handle route: /api/tables/ GET")
	api.HandleFunc("/tables/", a.tableList).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /api/tables/grouped/ GET")
	api.HandleFunc("/tables/grouped/", a.tableListGrouped).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /api/links/ GET")
	api.HandleFunc("/links/", a.links).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /api/user/ GET")
	api.HandleFunc("/user/", a.user).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /api/change-password/ POST")
	api.HandleFunc("/change-password/", a.changePassword).Methods(http.MethodPost)

	a.handleVersion(api)
	a.handleFormRoutes(api)
	a.handleMediaRoutes(api)
	for _, tc := range a.tables {
		a.cruds[tc.Table().Name()].handleRoutes(api)
	}
}

func (a *Admin) tableList(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	names := make([]string, len(a.tables))
	for i, tc := range a.tables {
		names[i] = tc.Table().Name()
	}
	writeJSON(w, http.StatusOK, names)
}

type groupedNames struct {
	Grouped   map[string][]string `json:"grouped"`
	Ungrouped []string            `json:"ungrouped"`
}

func (a *Admin) tableListGrouped(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	response := groupedNames{Grouped: map[string][]string{}, Ungrouped: []string{}}
	for _, tc := range a.tables {
		if group := tc.MenuGroup(); group != "" {
			response.Grouped[group] = append(response.Grouped[group], tc.Table().Name())
		} else {
			response.Ungrouped = append(response.Ungrouped, tc.Table().Name())
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *Admin) links(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	links := a.sidebarLinks
	if links == nil {
		links = []SidebarLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (a *Admin) user(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil {
		access.AuthFailed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": auth.Identity,
		"user_id":  strconv.FormatInt(auth.UserID, 10),
	})
}
