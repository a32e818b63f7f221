// Package logging builds the zerolog loggers used across the service.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a component-scoped logger. In production the output is JSON
// on stdout; any other environment gets the human console writer.
func New(component, environment string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !isProduction(environment) {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).With().
		Timestamp().
		Str("component", component).
		Logger()
}

func isProduction(environment string) bool {
	switch strings.ToLower(environment) {
	case "production", "prod":
		return true
	}
	return false
}
