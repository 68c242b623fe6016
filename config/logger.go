package config

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the service logger. With LOG_FILE set, entries are also
// written as JSON to a size-rotated file. The returned closer releases it.
func NewLogger(c Config) (*log.Logger, io.Closer) {
	logger := log.New()
	logger.SetOutput(os.Stdout)
	if c.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if c.LogFile == "" {
		return logger, nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
