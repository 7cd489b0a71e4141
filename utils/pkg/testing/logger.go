package laketesting

import (
	"log/slog"
	"os"

	"github.com/stakewatch/lake/utils/pkg/logger"
)

// NewLogger returns a test logger. DEBUG=1 shows info, DEBUG=2 shows debug;
// otherwise only errors are printed.
func NewLogger() *slog.Logger {
	switch os.Getenv("DEBUG") {
	case "2":
		return logger.NewWithOptions(logger.Options{Verbose: true, Writer: os.Stderr})
	case "1":
		return logger.NewWithOptions(logger.Options{Writer: os.Stderr})
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
