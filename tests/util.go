package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

// Config returns the configuration used by tests. It does not read the environment.
func Config() *core.Config {
	return &core.Config{
		AppName:   "Fantakombat",
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		SecretKey: "test-secret-key",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Scoring: core.ScoringConfig{
			PresencePoints:       1.0,
			AbsencePoints:        -0.5,
			PresenceStreakPoints: 0.5,
			AbsenceStreakPoints:  -0.5,
		},
	}
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with every custom validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// Logger records log messages by level.
type Logger struct {
	mu       sync.Mutex
	messages map[string][]string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{messages: make(map[string][]string)}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(args) > 0 {
		msg = fmt.Sprintf("%s %v", msg, args)
	}
	l.messages[level] = append(l.messages[level], msg)
}

func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages[level]...)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, "", name+"@test.it", "", []string{user.RoleStudent}, true)
}

func CreateTeacher(t *testing.T, repo user.Repository, name string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, "", name+"@test.it", "", []string{user.RoleTeacher}, true)
}
