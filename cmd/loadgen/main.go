package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/paddle/internal/loadgen"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL  = flag.String("url", loadgen.DefaultBaseURL, "API base URL")
		players  = flag.Int("players", loadgen.DefaultPlayers, "Players to register")
		games    = flag.Int("games", loadgen.DefaultGames, "Distinct games to submit")
		workers  = flag.Int("workers", loadgen.DefaultWorkers, "Concurrent submitters")
		ties     = flag.Float64("ties", loadgen.DefaultTieRate, "Fraction of tied games")
		resubmit = flag.Float64("resubmit", loadgen.DefaultResubmitRate, "Fraction of games resubmitted")
		seed     = flag.Uint64("seed", 0, "Random seed (0 picks one)")
		timeout  = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		runFor   = flag.Duration("run-timeout", defaultRunTimeout, "Overall run timeout")
		logFile  = flag.String("log", "", "Also write logs to this file")
		verbose  = flag.Bool("verbose", false, "Log every failed request")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	closeLog, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to set up logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runFor)
	defer cancel()

	_, err = loadgen.Run(ctx, &loadgen.Config{
		BaseURL:      *baseURL,
		Players:      *players,
		Games:        *games,
		Workers:      *workers,
		TieRate:      *ties,
		ResubmitRate: *resubmit,
		Timeout:      *timeout,
		Seed:         *seed,
		Verbose:      *verbose,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("load run failed: " + err.Error() + "\n")
		cancel()
		closeLog()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: cleanup runs explicitly above
	}
}
