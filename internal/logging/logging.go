package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger and returns it.
// Uses a human-readable console writer unless jsonOut is set.
func Setup(level string, jsonOut bool) zerolog.Logger {
	return SetupWriter(os.Stdout, level, jsonOut)
}

// SetupWriter is Setup with an explicit sink.
func SetupWriter(w io.Writer, level string, jsonOut bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if !jsonOut {
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = w
			cw.TimeFormat = time.RFC3339
			cw.NoColor = true
		})
	}
	log.Logger = zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
	return log.Logger
}

// ParseLevel maps a level name to zerolog; unknown names default to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
