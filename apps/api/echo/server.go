package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	"github.com/fantakombat/backend/core/scoring"
	"github.com/fantakombat/backend/core/user"
)

type ServerDeps struct {
	Conf           *core.Config
	Logger         core.Logger
	UserSvc        *user.Service
	CourseSvc      *course.Service
	ScoringSvc     *scoring.Service
	Validate       *validator.Validate
	Translator     ut.Translator
	DisableReqLogs bool
	// Pingers are checked by the health endpoint, by name.
	Pingers map[string]core.Pinger
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	tokens   *TokenIssuer
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   NewTokenIssuer(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := s.tokens.middleware()
	authed := v1.Group("", jwt, activeUserMiddleware(s.deps.UserSvc))

	registerUserAPI(v1, authed, s.tokens, s.deps)
	registerCourseAPI(authed, s.deps)
	registerScoringAPI(authed, s.deps)
}

// Start listens until the server is shut down. Failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := make(map[string]string, len(s.deps.Pingers))
	code := http.StatusOK
	for name, p := range s.deps.Pingers {
		if err := p.PingContext(ctx.Request().Context()); err != nil {
			s.deps.Logger.Warn("health check failed: "+name, err)
			status[name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	return ctx.JSON(code, status)
}
