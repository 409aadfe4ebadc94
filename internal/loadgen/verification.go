package loadgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/paddle/internal/domain/types"
	"github.com/okian/paddle/pkg/logger"
)

// verifyBoard checks lb against the ordering and ranking rules and makes sure
// every name in players is on it with the rank /rank reported. ranks may be nil.
func verifyBoard(lb types.Leaderboard, players []string, ranks map[string]types.Entry) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrVerification}, args...)...))
	}

	if lb.Total != len(lb.Entries) {
		fail("total %d but %d entries", lb.Total, len(lb.Entries))
	}
	seen := make(map[string]types.Entry, len(lb.Entries))
	for i, e := range lb.Entries {
		seen[e.Player] = e
		if e.Wins+e.Losses > e.Games {
			fail("%s has %d wins and %d losses in %d games", e.Player, e.Wins, e.Losses, e.Games)
		}
		if i == 0 {
			if e.Rank != 1 {
				fail("first entry %s has rank %d", e.Player, e.Rank)
			}
			continue
		}
		prev := lb.Entries[i-1]
		switch {
		case e.Composite > prev.Composite:
			fail("entry %d (%s) outscores entry %d (%s)", i, e.Player, i-1, prev.Player)
		case e.Composite == prev.Composite && e.Player < prev.Player:
			fail("tied entries %s and %s out of name order", prev.Player, e.Player)
		}
		want := prev.Rank
		if e.Composite < prev.Composite {
			want = i + 1
		}
		if e.Rank != want {
			fail("%s at position %d has rank %d, want %d", e.Player, i, e.Rank, want)
		}
	}

	for _, p := range players {
		e, ok := seen[p]
		if !ok {
			fail("registered player %s missing", p)
			continue
		}
		if ranks == nil {
			continue
		}
		r, ok := ranks[p]
		switch {
		case !ok:
			fail("no rank fetched for %s", p)
		case r.Rank != e.Rank || r.Composite != e.Composite:
			fail("%s: /rank says %d (%v), leaderboard says %d (%v)", p, r.Rank, r.Composite, e.Rank, e.Composite)
		}
	}
	return errors.Join(errs...)
}

// verifyCounts checks the submission tallies when nothing failed.
func verifyCounts(stats *Stats) error {
	if stats.Failed > 0 {
		return nil
	}
	var errs []error
	if stats.Accepted != stats.GamesGenerated {
		errs = append(errs, fmt.Errorf("%w: %d games accepted, %d generated", ErrVerification, stats.Accepted, stats.GamesGenerated))
	}
	if stats.Duplicates != stats.Resubmissions {
		errs = append(errs, fmt.Errorf("%w: %d duplicates reported, %d resubmitted", ErrVerification, stats.Duplicates, stats.Resubmissions))
	}
	return errors.Join(errs...)
}

// displayTopPlayers logs the head of the leaderboard.
func displayTopPlayers(ctx context.Context, lb types.Leaderboard) {
	log := logger.Get()
	for _, e := range lb.Entries[:min(topToLog, len(lb.Entries))] {
		log.Info(ctx, "leaderboard",
			logger.Int("rank", e.Rank),
			logger.String("player", e.Player),
			logger.String("composite", e.Display.Composite),
			logger.Int("rating", e.Rating),
			logger.Int("wins", e.Wins),
			logger.Int("losses", e.Losses))
	}
}
