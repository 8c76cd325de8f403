package app

import (
	"io"
	"os"
	"strings"

	"github.com/lexiconlabs/tokengate/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the global logger from config. With a log file
// set, output goes to both stderr and a size-rotated file.
func SetupLogging(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if strings.TrimSpace(cfg.File) == "" {
		log.SetOutput(os.Stderr)
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
}
