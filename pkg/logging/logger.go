// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures structured logging for the tutor stack.
//
// # Description
//
// Thin construction layer over log/slog: pick a level, optionally tee to a
// per-service log file, and tag every record with the service name. Callers
// install the result as the process default with slog.SetDefault and then
// use plain slog throughout; nothing else in the tree imports this package.
//
// # Thread Safety
//
// Logger is safe for concurrent use after New. Close must only be called
// once, after all logging has stopped.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level names accepted by Config and the TUTOR_LOG_LEVEL override.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// slogLevel maps a Level onto slog's numeric levels. Unknown names degrade
// to info rather than failing startup.
func (l Level) slogLevel() slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config tunes logger construction.
type Config struct {
	// Level is the minimum severity emitted. TUTOR_LOG_LEVEL overrides it
	// so deployments can turn on debug without a rebuild.
	Level Level

	// LogDir, when non-empty, tees output to a date-stamped file under the
	// directory, creating it if needed. File open failures are reported to
	// stderr and logging continues on stderr alone.
	LogDir string

	// Service tags every record. Empty defaults to "tutor".
	Service string

	// JSON selects the JSON handler; false selects the text handler.
	JSON bool

	// Quiet suppresses the stderr stream, leaving only the file. Used by
	// CLI runs where stdout is the user interface.
	Quiet bool
}

// Logger owns the configured handler and any open log file.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New builds a Logger from cfg. Never fails; degraded configurations fall
// back to stderr so a broken log directory cannot take the service down.
func New(cfg Config) *Logger {
	if cfg.Service == "" {
		cfg.Service = "tutor"
	}
	level := cfg.Level
	if env := os.Getenv("TUTOR_LOG_LEVEL"); env != "" {
		level = Level(env)
	}

	var sinks []io.Writer
	if !cfg.Quiet {
		sinks = append(sinks, os.Stderr)
	}

	var file *os.File
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: cannot open log file: %v\n", err)
		} else {
			file = f
			sinks = append(sinks, f)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	out := io.MultiWriter(sinks...)
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		slogger: slog.New(handler).With("service", cfg.Service),
		file:    file,
	}
}

// Slog returns the configured *slog.Logger, ready for slog.SetDefault.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// openLogFile creates dir if needed and opens an append-only file named
// <service>_<date>.log, one file per service per day.
func openLogFile(dir, service string) (*os.File, error) {
	expanded, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", expanded, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	path := filepath.Join(expanded, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// expandHome resolves a leading ~ so TUTOR_LOG_DIR=~/.aleutian-tutor/logs
// works the way shells lead operators to expect.
func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}
