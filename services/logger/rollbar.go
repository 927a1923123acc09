package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/user"
)

// RollbarLogger reports to Rollbar and mirrors every entry to a std logger.
type RollbarLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close flushes the pending Rollbar items.
func (l *RollbarLogger) Close() {
	rollbar.Close()
}

// prepare moves the served user.User out of args and onto the Rollbar person.
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs []interface{}, usr *user.User) {
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		if u, ok := arg.(user.User); ok {
			if usr == nil {
				usr = &u
			}
			continue
		}
		rbArgs = append(rbArgs, arg)
	}
	if usr != nil {
		rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	return rbArgs, usr
}

func (l *RollbarLogger) print(level, msg string, args []interface{}, usr *user.User) {
	var b strings.Builder
	b.WriteString("[" + level + "] " + msg)
	if usr != nil {
		fmt.Fprintf(&b, " user=%s", usr.ID)
	}
	var errs []error
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			errs = append(errs, v)
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, v[k])
			}
		case user.User:
		default:
			fmt.Fprintf(&b, " %+v", v)
		}
	}
	l.std.Println(b.String())
	for _, err := range errs {
		l.std.Printf("%+v\n", err)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	rbArgs, usr := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.print("DEBUG", msg, args, usr)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, usr := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.print("INFO", msg, args, usr)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, usr := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.print("WARN", msg, args, usr)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, usr := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.print("ERROR", msg, args, usr)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, usr := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	l.print("FATAL", msg, args, usr)
	rollbar.Close()
	l.std.Fatal(msg)
}
