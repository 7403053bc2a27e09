package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const defaultTimeFormat = time.TimeOnly

type Config struct {
	Env              string
	Level            string // overrides the env default when set
	AddSource        bool
	SourcePathLength int
	TimeFormat       string
	Output           io.Writer
}

// Logger is a wrapper around slog.Logger with additional methods
type Logger struct {
	*slog.Logger
}

func New(config Config) (*Logger, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}

	handler, err := createHandler(config)
	if err != nil {
		return nil, fmt.Errorf("failed to determine handler: %w", err)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return &Logger{
		Logger: logger,
	}, nil
}

// With returns a Logger that includes the given attributes in each record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component is a shorthand for tagging logs of one subsystem
func (l *Logger) Component(name string) *slog.Logger {
	return l.Logger.With("component", name)
}
