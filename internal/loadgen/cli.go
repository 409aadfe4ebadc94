package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/paddle/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the global logger to stdout and, when logFile is
// set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	w := io.Writer(os.Stdout)
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	if err := logger.InitWithWriter(w); err != nil {
		closeFn()
		return nil, err
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the loadgen tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Paddle League Load Generator
============================

Registers players, submits random games concurrently and verifies the
leaderboard the server ends up with.

Usage:
  loadgen [options]

Options:
  -url string        API base URL (default "http://localhost:8080/api")
  -players int       Players to register (default 20)
  -games int         Distinct games to submit (default 1000)
  -workers int       Concurrent submitters (default 8)
  -ties float        Fraction of tied games (default 0.05)
  -resubmit float    Fraction of games resubmitted with the same id (default 0.05)
  -seed uint         Random seed, 0 picks one (default 0)
  -timeout duration  HTTP request timeout (default 30s)
  -log string        Also write logs to this file
  -verbose           Log every failed request
  -help              Show this help message

Examples:
  loadgen -players 50 -games 20000 -workers 32
  loadgen -url http://league.local:8080/api -seed 42
`)
}
