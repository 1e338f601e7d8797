// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Params controls where and how logs are written.
type Params struct {
	Level    string // trace, debug, info, warn, error or fatal (default: info)
	File     string // Rotated log file, empty for stdout only
	ToStdout bool   // Also write to stdout when File is set
	JSON     bool
}

// Setup applies params to the standard logrus logger and returns it.
func Setup(params Params) *logrus.Logger {
	logger := logrus.StandardLogger()
	configure(logger, params)
	return logger
}

func configure(logger *logrus.Logger, params Params) {
	if params.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(ParseLevel(params.Level))

	if params.File == "" {
		logger.SetOutput(os.Stdout)
		return
	}

	if !strings.HasSuffix(params.File, ".log") {
		params.File += ".log"
	}
	rotated := &lumberjack.Logger{
		Filename:   params.File,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		Compress:   true,
	}

	if params.ToStdout {
		logger.SetOutput(io.MultiWriter(os.Stdout, rotated))
	} else {
		logger.SetOutput(rotated)
	}
}

// ParseLevel maps a level name to a logrus level. Unknown names give info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
