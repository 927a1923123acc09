package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/fantakombat/backend/apps/api/echo"
	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
	logsvc "github.com/fantakombat/backend/services/logger"
	rediscache "github.com/fantakombat/backend/storage/cache/redis"
	"github.com/fantakombat/backend/storage/database"
	dummydb "github.com/fantakombat/backend/storage/database/dummy"
	sqlxrepos "github.com/fantakombat/backend/storage/database/sqlx"
)

// stores are the repositories the services run on, Postgres or in-memory.
type stores struct {
	tx      core.Transactor
	pinger  core.Pinger
	users   user.Repository
	courses course.Repository
	scores  scoring.Repository
	close   func() error
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
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	ctx := context.Background()

	// set up DB
	st, err := setUpStores(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = st.close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	pingers := map[string]core.Pinger{"database": st.pinger}

	// set up ranking cache
	var cache scoring.RankingCache
	if !conf.Redis.Disabled {
		client, err := rediscache.Open(ctx, conf.Redis)
		if err != nil {
			logger.Warn(fmt.Sprintf("ranking cache disabled: %v", err), err)
		} else {
			defer func() { _ = client.Close() }()
			rc := rediscache.NewRankingCache(client, conf.Redis.RankingCacheTTL)
			cache = rc
			pingers["cache"] = rc
		}
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrSvc := user.NewService(st.users)
	courseSvc := course.NewService(st.courses, st.users, st.tx, validate, conf, logger)
	scoringSvc := scoring.NewService(st.scores, st.courses, st.users, st.tx, cache, validate, logger)
	usrSvc.OnChange(scoringSvc.UsersChanging)

	// courses created before an automatic action was introduced get it now
	if err = courseSvc.ProvisionAllCourses(ctx); err != nil {
		logger.Error(fmt.Sprintf("provisioning automatic actions: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			CourseSvc:  courseSvc,
			ScoringSvc: scoringSvc,
			Validate:   validate,
			Translator: translator,
			Pingers:    pingers,
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

func setUpStores(ctx context.Context, conf *core.Config) (stores, error) {
	if conf.Database.InMemory {
		if conf.Env != "DEV" {
			return stores{}, fmt.Errorf("the in-memory database is restricted to DEV (env %s)", conf.Env)
		}
		db := dummydb.Open()
		return stores{
			tx:      db,
			pinger:  db,
			users:   dummydb.NewUserRepository(db),
			courses: dummydb.NewCourseRepository(db),
			scores:  dummydb.NewScoringRepository(db),
			close:   db.Close,
		}, nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return stores{}, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return stores{}, err
	}
	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return stores{}, err
	}

	store := sqlxrepos.NewStore(db)
	return stores{
		tx:      store,
		pinger:  store,
		users:   sqlxrepos.NewUserRepository(store),
		courses: sqlxrepos.NewCourseRepository(store),
		scores:  sqlxrepos.NewScoringRepository(store),
		close:   store.Close,
	}, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
