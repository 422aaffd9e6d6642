package logging

import (
	"go.uber.org/zap"
)

// New creates the application logger. Development mode uses the console
// encoder, everything else logs JSON to stderr.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Sync flushes buffered log entries, ignoring the harmless errors some
// platforms return when stderr is not syncable.
func Sync(log *zap.Logger) {
	_ = log.Sync()
}
