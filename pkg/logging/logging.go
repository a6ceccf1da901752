package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ConsoleLogger returns a text logger writing to stdout.
func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(level)
	return logger
}

// FileLogger returns a JSON logger that writes to both stdout and the file at
// logPath. The caller owns the returned file and must close it on shutdown.
func FileLogger(level logrus.Level, logPath string) (*os.File, *logrus.Logger, error) {
	if logPath == "" {
		return nil, ConsoleLogger(level), nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(level)
	return f, logger, nil
}

// Nop returns an entry that discards everything below panic level.
func Nop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
