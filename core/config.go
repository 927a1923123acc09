package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Scoring  ScoringConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool // run against the in-memory store (DEV only)
	}

	RedisConfig struct {
		URL             string
		RankingCacheTTL time.Duration
		Disabled        bool
	}

	// ScoringConfig holds the default points of the automatic actions provisioned for new courses.
	ScoringConfig struct {
		PresencePoints       float64
		AbsencePoints        float64
		PresenceStreakPoints float64
		AbsenceStreakPoints  float64
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("appName", "Fantakombat")
	conf.SetDefault("build", "dev")
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("secretKey", "x9!kq-2m0v^t@combat#dojo$8w&e(r)l7+u_z3ay4bn6")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("shutdownTimeout", 5*time.Second)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbName", "fantakombat")
	conf.SetDefault("dbUser", "fantakombat")
	conf.SetDefault("dbPassword", "fantakombat")
	conf.SetDefault("dbAdminUser", "postgres")
	conf.SetDefault("dbAdminPassword", "postgres")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("dbInMemory", false)

	conf.SetDefault("redisURL", "redis://localhost:6379/0")
	conf.SetDefault("redisRankingCacheTTL", 10*time.Minute)
	conf.SetDefault("redisDisabled", false)

	conf.SetDefault("presencePoints", 1.0)
	conf.SetDefault("absencePoints", -0.5)
	conf.SetDefault("presenceStreakPoints", 0.5)
	conf.SetDefault("absenceStreakPoints", -0.5)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:      conf.GetString("appName"),
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           conf.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetInt("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
			InMemory:      conf.GetBool("dbInMemory"),
		},
		Redis: RedisConfig{
			URL:             conf.GetString("redisURL"),
			RankingCacheTTL: conf.GetDuration("redisRankingCacheTTL"),
			Disabled:        conf.GetBool("redisDisabled"),
		},
		Scoring: ScoringConfig{
			PresencePoints:       conf.GetFloat64("presencePoints"),
			AbsencePoints:        conf.GetFloat64("absencePoints"),
			PresenceStreakPoints: conf.GetFloat64("presenceStreakPoints"),
			AbsenceStreakPoints:  conf.GetFloat64("absenceStreakPoints"),
		},
	}
}
