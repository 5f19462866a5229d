// Package logger builds the zerolog loggers used across the service.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0664

// Build configures a logger destination: stdout by default, optionally a
// buffer (tests) or an append-only file (operator jobs).
type Build struct {
	writer io.Writer
	path   string
}

// New starts a logger build.
func New() *Build {
	return &Build{}
}

// ToWriter directs log output at w.
func (b *Build) ToWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

// ToPath directs log output at an append-only file.
func (b *Build) ToPath(path string) *Build {
	b.path = path
	return b
}

// Make produces the configured logger with timestamps attached.
func (b *Build) Make() (zerolog.Logger, error) {
	w := b.writer
	if w == nil {
		w = os.Stdout
	}
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return zerolog.Logger{}, err
		}
		w = zerolog.SyncWriter(f)
	}
	return zerolog.New(w).With().Timestamp().Logger(), nil
}
