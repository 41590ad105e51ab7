package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the root logger from LOG_LEVEL and APP_ENV and installs it as the
// zerolog global. Production writes JSON to stderr; other environments use the console writer.
func (c *Config) NewLogger(component string) zerolog.Logger {
	return c.newLogger(os.Stderr, component)
}

func (c *Config) newLogger(out io.Writer, component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	w := out
	if !c.Production() {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
	log.Logger = logger
	return logger
}
