package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// loggers holds one logger per subsystem, all sharing a backend.
type loggers struct {
	Main     slog.Logger
	Arena    slog.Logger
	Ledger   slog.Logger
	Agent    slog.Logger
	Research slog.Logger
	Store    slog.Logger
	HTTP     slog.Logger
}

func (l loggers) all() map[string]slog.Logger {
	return map[string]slog.Logger{
		"MAIN": l.Main, "ARNA": l.Arena, "LDGR": l.Ledger, "AGNT": l.Agent,
		"RSCH": l.Research, "STOR": l.Store, "HTTP": l.HTTP,
	}
}

func newLoggers(w io.Writer, level slog.Level) loggers {
	backend := slog.NewBackend(w)
	l := loggers{
		Main:     backend.Logger("MAIN"),
		Arena:    backend.Logger("ARNA"),
		Ledger:   backend.Logger("LDGR"),
		Agent:    backend.Logger("AGNT"),
		Research: backend.Logger("RSCH"),
		Store:    backend.Logger("STOR"),
		HTTP:     backend.Logger("HTTP"),
	}
	for _, lg := range l.all() {
		lg.SetLevel(level)
	}
	return l
}

// logWriter tees log output to stdout and, when set, the rotating file.
type logWriter struct {
	out io.Writer
	rot *rotator.Rotator
}

func (w logWriter) Write(p []byte) (int, error) {
	w.out.Write(p)
	if w.rot != nil {
		w.rot.Write(p)
	}
	return len(p), nil
}

// setupLogging builds the subsystem loggers from the config. The returned
// closer flushes the log file and is never nil.
func setupLogging(cfg Config) (loggers, func(), error) {
	level, ok := slog.LevelFromString(cfg.LogLevel)
	if !ok {
		return loggers{}, func() {}, fmt.Errorf("LOG_LEVEL %q: want trace, debug, info, warn, error, critical or off", cfg.LogLevel)
	}
	w := logWriter{out: os.Stdout}
	closer := func() {}
	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return loggers{}, closer, fmt.Errorf("log dir: %w", err)
			}
		}
		rolls := cfg.LogMaxRolls
		if rolls <= 0 {
			rolls = 3
		}
		r, err := rotator.New(cfg.LogFile, 10*1024, false, rolls)
		if err != nil {
			return loggers{}, closer, fmt.Errorf("log rotator: %w", err)
		}
		w.rot = r
		closer = func() { r.Close() }
	}
	return newLoggers(w, level), closer, nil
}
