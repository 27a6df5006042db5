package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})
	return l
}

// SetOutput redirects log lines. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger.SetOutput(w)
}

// SetLevel accepts debug, info, warn or error. Unknown values keep the
// current level.
func SetLevel(raw string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return
	}
	logger.SetLevel(lvl)
}

// Debug writes a debug-level log line with the given fields.
func Debug(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Debug(msg)
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Info(msg)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Warn(msg)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	logger.WithFields(logrus.Fields(fields)).Error(msg)
}

// Component returns a printf-style logger tagged with component, for
// libraries that expect Printf and Fatalf.
func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}
