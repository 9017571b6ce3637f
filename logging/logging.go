// Package logging provides the structured, leveled logger shared by every
// component of the ingest worker, built on logrus.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes error-level log lines to stderr and everything else
// to stdout, so container log collectors can treat the two streams
// differently without parsing the line itself.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Config controls how New builds a logger.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // "json" or "text"
	Service   string
	Version   string
	AddCaller bool
}

// New builds a logger with cfg's level, format and caller reporting, with
// output routed through OutputSplitter. cfg.Service and cfg.Version are not
// attached to log entries; callers add such fields through WithFields.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(OutputSplitter{})

	return logger
}

// Fields is a builder-style wrapper around logrus.Fields, mirroring the
// with-field chaining idiom used throughout the original log helpers.
type Fields struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// WithFields starts a Fields builder against logger, or the package
// standard logger if nil.
func WithFields(logger *logrus.Logger, fields map[string]interface{}) *Fields {
	if logger == nil {
		logger = Standard
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &Fields{logger: logger, fields: base}
}

func (f *Fields) clone() *Fields {
	next := make(logrus.Fields, len(f.fields))
	for k, v := range f.fields {
		next[k] = v
	}
	return &Fields{logger: f.logger, fields: next}
}

// With adds a single field and returns a new builder.
func (f *Fields) With(key string, value interface{}) *Fields {
	n := f.clone()
	n.fields[key] = value
	return n
}

// WithError adds an error field.
func (f *Fields) WithError(err error) *Fields {
	return f.With("error", err.Error())
}

func (f *Fields) Debug(msg string) { f.logger.WithFields(f.fields).Debug(msg) }
func (f *Fields) Info(msg string)  { f.logger.WithFields(f.fields).Info(msg) }
func (f *Fields) Warn(msg string)  { f.logger.WithFields(f.fields).Warn(msg) }
func (f *Fields) Error(msg string) { f.logger.WithFields(f.fields).Error(msg) }

// Operation logs the start/end of fn with timing under the "operation" field.
func Operation(logger *Fields, name string, fn func() error) error {
	start := time.Now()
	logger.With("operation", name).Info("operation started")

	err := fn()
	entry := logger.With("operation", name).With("duration", time.Since(start).String())
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Info("operation completed")
	return nil
}

// Standard is the process-wide default logger, used by WithFields when it
// is handed a nil logger. It is not configured from config.Settings: it
// keeps logrus's defaults apart from writing through OutputSplitter.
var Standard = logrus.New()

func init() {
	Standard.SetOutput(OutputSplitter{})
}

// MaskSecret renders secret safe for inclusion in a log line: the first
// and last four characters survive, the middle is elided.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
