package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/ziflex/lecho/v3"
)

// Logger writes to stdout, or to a dated file next to logFilePath when set.
func Logger(logFilePath string) *lecho.Logger {
	logger := lecho.New(
		os.Stdout, // default to STDOUT
		lecho.WithLevel(log.DEBUG),
		lecho.WithTimestamp(),
		lecho.WithField("service", "bchhub"),
	)
	if logFilePath != "" {
		file, err := GetLoggingFile(logFilePath, time.Now())
		if err != nil {
			logger.Errorf("failed to create logging file: %v", err)
			return logger
		}
		logger.SetOutput(file)
	}
	return logger
}

// Discard is used by tools and tests that want a logger but no output.
func Discard() *lecho.Logger {
	return lecho.New(io.Discard)
}

func GetLoggingFile(path string, now time.Time) (*os.File, error) {
	stamp := now.Format("-2006-01-02")
	extension := filepath.Ext(path)
	if extension != "" {
		path = strings.TrimSuffix(path, extension) + stamp + extension
	} else {
		path = path + stamp + ".log"
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
}
