package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the JSON logger used across the client. The terminal belongs to
// the UI, so output normally goes to a file.
func New(out io.Writer, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logger.SetLevel(logrus.InfoLevel)
	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			logger.SetLevel(lvl)
		}
	}

	return logger
}

// OpenFile opens (appending) the log file at path and returns a logger
// writing to it together with a close func.
func OpenFile(path, level string) (*logrus.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return New(f, level), f.Close, nil
}

// Discard is a logger for tests and for callers that do not log.
func Discard() *logrus.Logger {
	return New(io.Discard, "panic")
}

// Service returns an entry tagged with the service name.
func Service(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("service", name)
}
