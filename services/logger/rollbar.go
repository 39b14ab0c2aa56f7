package logsvc

import (
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/identity"
)

// RollbarLogger reports to rollbar and mirrors everything to a std logger.
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
	rollbar.SetEnabled(!conf.Debug && conf.RollbarToken != "")
	return &RollbarLogger{std: std, debug: conf.Debug}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// split separates the Requester, if any, from the other args.
// expected args: error, map[string]interface{}, identity.Requester
func split(args []interface{}) ([]interface{}, *identity.Requester) {
	var requester *identity.Requester
	rest := make([]interface{}, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case identity.Requester:
			if requester == nil { // only one person per item
				requester = &a
			}
		case *identity.Requester:
			if requester == nil && a != nil {
				requester = a
			}
		default:
			rest = append(rest, arg)
		}
	}
	return rest, requester
}

func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	rest, requester := split(args)
	if requester != nil && !requester.IsAnonymous() {
		rollbar.SetPerson(requester.ID, requester.Name, "")
	} else {
		rollbar.ClearPerson()
	}
	return append([]interface{}{msg}, rest...)
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	rest, requester := split(args)
	if requester != nil && !requester.IsAnonymous() {
		msg = msg + " [" + requester.ID + " " + strings.Join(requester.Roles, ",") + "]"
	}
	l.std.Println(level + " " + msg)
	for _, arg := range rest {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	rollbar.Debug(l.prepare(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Close()
	l.std.Fatal(msg)
}
