package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger.
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)
	Log.SetLevel(levelFromEnv(os.Getenv("LOG_LEVEL")))
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

func levelFromEnv(value string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ForFlow returns an entry tagged with the generation flow and the caller's identity.
func ForFlow(mode, email, sessionID, model string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"mode":       mode,
		"email":      email,
		"session_id": sessionID,
		"model":      model,
	})
}
