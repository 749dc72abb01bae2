package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Init replaces it once the service name is known.
var Log *logrus.Entry

var logger *logrus.Logger

func init() {
	Init("civicvoice", false)
}

// Init configures the global logger. Production output is JSON so the log
// pipeline can index fields; development output stays human readable.
func Init(service string, prod bool) {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	if prod {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	Log = logger.WithFields(logrus.Fields{
		"service":        service,
		"is_development": !prod,
	})
}

// Component returns a logger tagged with the given component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
