package logging

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConfigureCommandLineLogging sets up logrus for interactive use: plain text on stderr,
// so stdout stays free for command output.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	log.SetOutput(os.Stderr)
}

// SetLevel applies a level name such as "debug" or "warn".
func SetLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	log.SetLevel(l)
	return nil
}
