package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/paddle/internal/domain/types"
	"github.com/okian/paddle/pkg/logger"
)

// getLeaderboard fetches the whole leaderboard.
func getLeaderboard(ctx context.Context, c *HTTPClient, stats *Stats) (types.Leaderboard, error) {
	var lb types.Leaderboard
	if err := c.getJSON(ctx, "/leaderboard", &lb); err != nil {
		return types.Leaderboard{}, fmt.Errorf("fetch leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(lb.Entries)
	return lb, nil
}

// retrieveRanks fetches /rank/{name} for every player concurrently.
func retrieveRanks(ctx context.Context, c *HTTPClient, config *Config, names []string, stats *Stats) (map[string]types.Entry, error) {
	log := logger.Get()
	log.Info(ctx, "retrieving ranks", logger.Int("players", len(names)), logger.Int("workers", config.Workers))

	ranks := make([]types.Entry, len(names))
	errs := make([]error, len(names))
	var retrieved atomic.Int64

	indexChan := make(chan int, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexChan {
				if err := c.getJSON(ctx, playerPath("/rank/", names[i]), &ranks[i]); err != nil {
					errs[i] = fmt.Errorf("rank %s: %w", names[i], err)
					if config.Verbose {
						log.Warn(ctx, "rank lookup failed", logger.String("player", names[i]), logger.Error(err))
					}
					continue
				}
				retrieved.Add(1)
			}
		}()
	}
	for i := range names {
		indexChan <- i
	}
	close(indexChan)
	wg.Wait()

	stats.RanksRetrieved = int(retrieved.Load())
	out := make(map[string]types.Entry, len(names))
	for i, name := range names {
		if errs[i] != nil {
			return nil, errs[i]
		}
		out[name] = ranks[i]
	}
	return out, nil
}
