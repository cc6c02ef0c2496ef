package tasks

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger provides the logging contract required by the consumer. Every record
// carries job_id and job_name so executions can be correlated across retries
// (see the logging contract in SPEC_FULL.md §6). Implement this interface to
// plug in your own logging platform, or use NewZerologLogger for the default.
type Logger interface {
	Debug(jobID, jobName, msg string)
	Info(jobID, jobName, msg string)
	Warn(jobID, jobName, msg string)
	Error(jobID, jobName, msg string, err error)
}

// zerologLogger is the default Logger, backed by zerolog.
type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger builds the default Logger. It emits JSON records to
// stdout; use zerolog.ConsoleWriter{Out: os.Stderr} for local development.
func NewZerologLogger() Logger {
	return &zerologLogger{
		log: zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

func (l *zerologLogger) Debug(jobID, jobName, msg string) {
	l.log.Debug().Str("job_id", orUnknown(jobID)).Str("job_name", orUnknown(jobName)).Msg(msg)
}

func (l *zerologLogger) Info(jobID, jobName, msg string) {
	l.log.Info().Str("job_id", orUnknown(jobID)).Str("job_name", orUnknown(jobName)).Msg(msg)
}

func (l *zerologLogger) Warn(jobID, jobName, msg string) {
	l.log.Warn().Str("job_id", orUnknown(jobID)).Str("job_name", orUnknown(jobName)).Msg(msg)
}

func (l *zerologLogger) Error(jobID, jobName, msg string, err error) {
	l.log.Error().Str("job_id", orUnknown(jobID)).Str("job_name", orUnknown(jobName)).Err(err).Msg(msg)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
