// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/bobarin/docucast/internal/config"
	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// Setup applies level, format and optional file rotation to the standard logger.
func Setup(cfg config.LogConfig) {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	log.SetOutput(out)

	if err != nil {
		log.Warnf("[Logging] Unknown LOG_LEVEL %q, using info", cfg.Level)
	}
}
