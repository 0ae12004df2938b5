package log

import "github.com/robfig/cron/v3"

type cronLogger struct{}

// CronLogger routes the scheduler's own messages through this package.
// Routine scheduling chatter is logged at DEBUG.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, kv ...any) {
	Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	Error("cron: "+msg, err, kv...)
}
