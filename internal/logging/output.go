package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where the process logger writes.
type Options struct {
	// File, when set, receives a copy of every record and is rotated by size.
	File string
	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int
	Level     slog.Level
}

// New builds the process logger. Records go to stdout as text when stdout is
// a terminal and as JSON otherwise.
func New(opts Options) *SlogLogger {
	return NewSlogLogger(slog.New(newHandler(os.Stdout, opts)))
}

func newHandler(stdout *os.File, opts Options) slog.Handler {
	var w io.Writer = stdout
	if opts.File != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 10
		}
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    size,
			MaxBackups: 3,
		})
	}

	ho := &slog.HandlerOptions{Level: opts.Level}
	if term.IsTerminal(int(stdout.Fd())) && opts.File == "" {
		return slog.NewTextHandler(w, ho)
	}
	return slog.NewJSONHandler(w, ho)
}
