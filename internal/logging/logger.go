// Package logging builds the structured loggers shared by the server and
// the session client.  It uses echo's own logger so request logs and
// component logs come out in the same JSON shape.
package logging

import (
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

// header renders every line as a single JSON object.  The message fields
// (or the JSON passed to the *j variants) are appended by gommon.
const header = `{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}","file":"${short_file}","line":"${line}"}`

// New returns a logger tagged with prefix.  The level comes from LOG_LEVEL
// (debug, info, warn, error, off) and defaults to info.
func New(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetOutput(os.Stdout)
	l.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	return l
}

// ParseLevel maps a level name onto gommon's levels.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}
