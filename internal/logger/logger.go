// Package logger wires the standard log package to a rotating file.
package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log file rotation and console mirroring
type Config struct {
	LogDir     string
	LogFile    string
	MaxSize    int // MB per file before rotation
	MaxBackups int // rotated files to keep
	MaxAge     int // days to keep rotated files
	Compress   bool
	Console    bool
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		LogDir:     "logs",
		LogFile:    "ytgate.log",
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		Console:    true,
	}
}

var fileWriter *lumberjack.Logger

// Setup points the standard logger at a rotating file, optionally
// mirrored to stdout. Must run before any other component logs.
func Setup(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return err
	}

	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, cfg.LogFile),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var out io.Writer = fileWriter
	if cfg.Console {
		out = io.MultiWriter(os.Stdout, fileWriter)
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags)
	return nil
}

// Close flushes and closes the log file
func Close() error {
	if fileWriter != nil {
		return fileWriter.Close()
	}
	return nil
}
