package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the zerolog-backed logger.
type Config struct {
	// Level is one of "debug", "info", "error". Defaults to "info".
	Level string

	// File enables rotated file output when non-empty. Stderr is used
	// otherwise.
	File string

	// MaxSizeMB is the rotation threshold for file output (default 100).
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep (default 5).
	MaxBackups int

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool
}

type zerologLogger struct {
	log zerolog.Logger
}

// New creates a structured logger backed by zerolog.
func New(cfg Config) Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	return &zerologLogger{
		log: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}
}

func (l *zerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}
