package internal

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the application logger at cfg.LogLevel. Records go to w,
// or to a rotated cfg.LogFile when one is set. The returned closer releases
// the log file.
func NewLogger(cfg ApplicationConfig, w io.Writer, asJSON bool) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
		w, closer = lj, lj
		asJSON = true
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), closer
	}
	return slog.New(slog.NewTextHandler(w, opts)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
