// Package logger configures the process-wide logrus instance.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tongue-vision-go/internal/config"

	log "github.com/sirupsen/logrus"
)

// Init applies the log configuration to the global logger. An unparseable
// level falls back to info, a broken file sink is an error for the caller.
func Init(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
		log.Warnf("Unknown log level %q, falling back to info", cfg.Level)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	out := io.Writer(os.Stdout)
	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return err
		}
		// Keep stdout in the mix so container logs stay complete.
		out = io.MultiWriter(os.Stdout, file)
	}
	log.SetOutput(out)

	log.Debugf("Log level set to %s", level)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("could not create log directory for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", path, err)
	}
	return file, nil
}
