package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	echoapi "github.com/trezcool/hazira/apps/api/echo"
	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/session"
	"github.com/trezcool/hazira/services/events"
	logsvc "github.com/trezcool/hazira/services/logger"
	"github.com/trezcool/hazira/services/metrics"
	"github.com/trezcool/hazira/storage/database"
	inmemdb "github.com/trezcool/hazira/storage/database/inmem"
	pgrepos "github.com/trezcool/hazira/storage/database/postgres"
)

type publisher interface {
	core.Publisher
	Close() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up repositories
	var (
		sessionRepo    session.Repository
		attendanceRepo attendance.Repository
	)
	if conf.Database.InMemory {
		mem := inmemdb.Open()
		sessionRepo = inmemdb.NewSessionRepository(mem)
		attendanceRepo = inmemdb.NewAttendanceRepository(mem)
		dbLogger.Warn("using the in-memory database: nothing survives a restart")
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			dbLogger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		sessionRepo = pgrepos.NewSessionRepository(db)
		attendanceRepo = pgrepos.NewAttendanceRepository(db)
	}

	// set up event publisher
	var pub publisher = events.NoopPublisher{}
	if conf.NATS.URL != "" {
		natsPub, err := events.NewNATSPublisher(conf.NATS.URL)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to NATS: %v", err), err)
		}
		pub = natsPub
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error("closing event publisher", err)
		}
	}()

	// set up metrics
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(fmt.Sprintf("registering metrics: %v", err), err)
	}

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	session.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	policy, err := attendance.PolicyFromConfig(conf.Attendance)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading attendance policy: %v", err), err)
	}
	sessionSvc := session.NewService(sessionRepo, conf, pub, logger)
	attendanceSvc, err := attendance.NewService(attendance.Deps{
		Repo:       attendanceRepo,
		Sessions:   sessionSvc,
		Policy:     policy,
		Publisher:  pub,
		Metrics:    collector,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up attendance service: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - prometheus scrape endpoint.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("policy").Set(fmt.Sprintf("present>=%s short>=%s late_after=%s",
		policy.Present, policy.Short, policy.LateAfter))

	http.DefaultServeMux.Handle("/metrics", collector.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			SessionSvc:    sessionSvc,
			AttendanceSvc: attendanceSvc,
			Metrics:       collector,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
