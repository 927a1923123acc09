package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
	logsvc "github.com/fantakombat/backend/services/logger"
	rediscache "github.com/fantakombat/backend/storage/cache/redis"
	"github.com/fantakombat/backend/storage/database"
	sqlxrepos "github.com/fantakombat/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	ctx := context.Background()

	// set up DB
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("setting up database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	store := sqlxrepos.NewStore(db)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(store)
	crsRepo := sqlxrepos.NewCourseRepository(store)
	usrSvc := user.NewService(usrRepo)

	// users changed here must not linger in the API's cached rankings
	var cache scoring.RankingCache
	if !conf.Redis.Disabled {
		if client, err := rediscache.Open(ctx, conf.Redis); err != nil {
			logger.Warn("ranking cache unavailable", err)
		} else {
			defer func() { _ = client.Close() }()
			cache = rediscache.NewRankingCache(client, conf.Redis.RankingCacheTTL)
		}
	}
	scoringSvc := scoring.NewService(sqlxrepos.NewScoringRepository(store), crsRepo, usrRepo, store, cache, validate, logger)
	usrSvc.OnChange(scoringSvc.UsersChanging)

	// start CLI
	cli := commandLine{
		db:        db,
		usrSvc:    usrSvc,
		courseSvc: course.NewService(crsRepo, usrRepo, store, validate, conf, logger),
		validate:  validate,
	}
	err = cli.run(os.Args)
	_ = store.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
