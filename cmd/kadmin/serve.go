package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/kadmin/core"
	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/admin"
	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "creates missing tables and serves the admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := decodeService()
		if err != nil {
			return err
		}
		if len(service.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes long")
		}
		config, err := readConfiguration(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, service, config)
	},
}

// builder creates the admin builder of the configuration. DB and Router are set
// by the caller.
func builder(service *Service, config *Configuration) (*admin.Builder, error) {
	tables, err := config.tableConfigs(service)
	if err != nil {
		return nil, err
	}
	siteName := service.SiteName
	if siteName == "" {
		siteName = config.SiteName
	}
	return &admin.Builder{
		Tables:               tables,
		UpdateSchema:         true,
		NoAutoIncludeRelated: config.NoAutoIncludeRelated,
		IncludeAuthTables:    config.IncludeAuthTables,
		PageSize:             config.PageSize,
		ReadOnly:             service.ReadOnly,
		SiteName:             siteName,
		Production:           service.Production,
		SessionSecret:        []byte(service.SessionSecret),
		AllowedHosts:         splitList(service.AllowedHosts),
		SidebarLinks:         config.SidebarLinks,
	}, nil
}

func serve(ctx context.Context, service *Service, config *Configuration) error {
	rlog := logger.Default()

	bb, err := builder(service, config)
	if err != nil {
		return err
	}

	db, err := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	if err != nil {
		return err
	}
	defer db.Close()

	var notifier core.Notifier
	if brokers := splitList(service.KafkaBrokers); len(brokers) > 0 {
		kafka := notify.NewKafka(&notify.KafkaBuilder{Brokers: brokers, Topic: service.KafkaTopic})
		defer kafka.Close()
		notifier = kafka
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	bb.DB = db
	bb.Router = router
	bb.Notifier = notifier
	a, err := admin.New(bb)
	if err != nil {
		return err
	}

	if service.AdminUsername != "" && service.AdminPassword != "" {
		user, err := a.Users().EnsureUser(ctx, &access.User{
			Username:  service.AdminUsername,
			Active:    true,
			Admin:     true,
			Superuser: true,
		}, service.AdminPassword)
		if err != nil {
			return err
		}
		rlog.Infoln("superuser", user.Username, "is ready")
	}
	a.Sessions().DeleteExpiredAsync(ctx, time.Hour)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(service.Port),
		Handler:           handlers.ProxyHeaders(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rlog.WithError(err).Warnln("cannot shut down gracefully")
		}
	}()

	rlog.Infoln("listen on port", srv.Addr)
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	rlog.Infoln("admin stopped")
	return nil
}
