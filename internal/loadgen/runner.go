// Package loadgen drives a running league server with random traffic and
// checks the resulting leaderboard.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paddle/pkg/logger"
)

// Run executes a complete load run against config.BaseURL.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.Normalize(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now(), Seed: config.Seed}
	log := logger.Get()
	log.Info(ctx, "starting league load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.Players),
		logger.Int("games", config.Games),
		logger.Int("workers", config.Workers),
		logger.Float64("tieRate", config.TieRate),
		logger.Float64("resubmitRate", config.ResubmitRate),
		logger.Any("seed", config.Seed))

	client := newHTTPClient(config.BaseURL, config.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := newGenerator(config.Seed)
	players := gen.players(uuid.NewString()[:8], config.Players)
	games, resubmits, ties := gen.games(players, config.Games, config.TieRate, config.ResubmitRate)
	stats.GamesGenerated = config.Games
	stats.Resubmissions = resubmits
	stats.Ties = ties

	if err := registerPlayers(ctx, client, players, config.Workers, stats); err != nil {
		return stats, fmt.Errorf("player registration failed: %w", err)
	}
	submitGames(ctx, client, config, games, stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("submission interrupted: %w", err)
	}

	lb, err := getLeaderboard(ctx, client, stats)
	if err != nil {
		return stats, err
	}
	ranks, err := retrieveRanks(ctx, client, config, players, stats)
	if err != nil {
		return stats, err
	}
	displayTopPlayers(ctx, lb)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if err := errors.Join(verifyBoard(lb, players, ranks), verifyCounts(stats)); err != nil {
		return stats, err
	}
	log.Info(ctx, "load run verified")
	return stats, nil
}

func checkServiceHealth(ctx context.Context, c *HTTPClient) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/healthz", &body); err != nil {
		return err
	}
	logger.Get().Info(ctx, "service is healthy", logger.String("status", body.Status))
	return nil
}

func displayFinalStats(stats *Stats) {
	var acceptRate, gamesPerSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		gamesPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("players", stats.PlayersRegistered),
		logger.Int("gamesGenerated", stats.GamesGenerated),
		logger.Int("ties", stats.Ties),
		logger.Int("resubmissions", stats.Resubmissions),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("failed", stats.Failed),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("gamesPerSecond", gamesPerSecond))
}
