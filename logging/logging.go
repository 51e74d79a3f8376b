// Package logging sets up the default slog logger. Output can be held
// back in a buffer until a UI is ready to show it and is optionally
// copied to a log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// bufferingTeeWriter buffers output until a target is set and copies
// everything to an optional file.
type bufferingTeeWriter struct {
	mu          sync.Mutex
	buffer      *bytes.Buffer
	target      io.Writer
	file        *os.File
	isBuffering bool
}

func (w *bufferingTeeWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.isBuffering {
		w.buffer.Write(p)
	} else if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

// Options for Init.
type Options struct {
	// DEBUG, INFO, WARN or ERROR; anything else means INFO.
	Level string
	// "json" or "text"
	Format string
	// Log file to append to in addition to the live output; empty for none.
	File string
	// Buffer holds output back until SetOutput is called.
	Buffer bool
	// Live output when not buffering; nil means os.Stderr.
	Output io.Writer
}

var writer = &bufferingTeeWriter{buffer: &bytes.Buffer{}}

// Init replaces the default slog logger according to opts. Calling it
// again closes the log file of the previous call.
func Init(opts Options) error {
	newWriter := &bufferingTeeWriter{
		buffer:      &bytes.Buffer{},
		isBuffering: opts.Buffer,
		target:      opts.Output,
	}
	if newWriter.target == nil && !opts.Buffer {
		newWriter.target = os.Stderr
	}

	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("can't open log file %s: %w", opts.File, err)
		}
		newWriter.file = file
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(newWriter, handlerOpts)
	} else {
		handler = slog.NewTextHandler(newWriter, handlerOpts)
	}

	writer.mu.Lock()
	old := writer.file
	writer.mu.Unlock()
	if old != nil {
		old.Close()
	}

	writer = newWriter
	slog.SetDefault(slog.New(handler))
	return nil
}

func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput flushes the buffer to newTarget and starts live logging to it.
func SetOutput(newTarget io.Writer) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.buffer.Len() > 0 {
		if _, err := newTarget.Write(writer.buffer.Bytes()); err != nil {
			return err
		}
		writer.buffer.Reset()
	}
	writer.target = newTarget
	writer.isBuffering = false
	return nil
}

// BufferOutput stops live logging and starts buffering.
func BufferOutput() {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	writer.target = nil
	writer.isBuffering = true
}

// Close flushes remaining buffered output and closes the log file. With
// neither file nor target the buffer goes to stderr.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.file != nil {
		// buffered lines were already written to the file
		if err := writer.file.Close(); err != nil {
			firstErr = err
		}
		writer.file = nil
	} else if writer.target == nil && writer.buffer.Len() > 0 {
		if _, err := os.Stderr.Write(writer.buffer.Bytes()); err != nil {
			firstErr = err
		}
	}
	writer.buffer.Reset()
	return firstErr
}
