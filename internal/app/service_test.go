package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/paddle/internal/adapters/repository"
	service "github.com/okian/paddle/internal/app"
	"github.com/okian/paddle/internal/config"
	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.InitWithWriter(discard{}); err != nil {
		panic(err)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// conflictingStore fails the next n saves with ErrConflict.
type conflictingStore struct {
	*repository.MemoryStore
	n atomic.Int32
}

func (s *conflictingStore) Save(ctx context.Context, l *ledger.Ledger, b ranking.Board) error {
	if s.n.Add(-1) >= 0 {
		return repository.ErrConflict
	}
	return s.MemoryStore.Save(ctx, l, b)
}

// gatedStore blocks Load while closed is armed.
type gatedStore struct {
	*repository.MemoryStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.Load(ctx)
}

func started(opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithClock(func() time.Time { return t0 })}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func game(id, p1 string, s1 int, p2 string, s2 int) ledger.GameRecord {
	return ledger.GameRecord{ID: id, Player1: p1, Score1: s1, Player2: p2, Score2: s2}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Calls before Start fail with ErrNotStarted", func() {
			So(errors.Is(svc.RegisterPlayer(ctx, "alice"), service.ErrNotStarted), ShouldBeTrue)
			_, err := svc.Leaderboard(ctx, 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats(ctx).Started, ShouldBeFalse)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)
			So(stats.Started, ShouldBeTrue)
			So(stats.Workers, ShouldEqual, 1)
			So(stats.StoreDriver, ShouldEqual, repository.DriverMemory)
			So(svc.Health(ctx), ShouldBeNil)
			svc.Stop()
			svc.Stop()

			Convey("Then it reports stopped", func() {
				So(svc.GetStats(ctx).Started, ShouldBeFalse)
				So(errors.Is(svc.Health(ctx), service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("An unknown store driver fails Start", func() {
			bad := service.New(service.WithStoreDriver("excel"))
			So(errors.Is(bad.Start(ctx), repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestService_Writes(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started()
		defer svc.Stop()
		ctx := context.Background()

		So(svc.RegisterPlayer(ctx, "Alice"), ShouldBeNil)
		So(svc.RegisterPlayer(ctx, "Bob"), ShouldBeNil)

		Convey("Registering a name twice fails", func() {
			So(errors.Is(svc.RegisterPlayer(ctx, "Alice"), ledger.ErrDuplicatePlayer), ShouldBeTrue)
		})

		Convey("A blank name is rejected", func() {
			So(errors.Is(svc.RegisterPlayer(ctx, "  "), ledger.ErrInvalidPlayer), ShouldBeTrue)
		})

		Convey("When a game is submitted", func() {
			g, dup, err := svc.SubmitGame(ctx, game("g1", "Alice", 21, "Bob", 15))
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			Convey("Then it is recorded with the service clock", func() {
				So(g.ID, ShouldEqual, "g1")
				So(g.Winner, ShouldEqual, "Alice")
				So(g.Timestamp, ShouldEqual, t0)
			})

			Convey("Then the leaderboard reflects it", func() {
				lb, err := svc.Leaderboard(ctx, 0)
				So(err, ShouldBeNil)
				So(lb.Entries, ShouldHaveLength, 2)
				So(lb.Entries[0].Player, ShouldEqual, "Alice")
				So(lb.Entries[0].Rating, ShouldEqual, 1516)
				So(lb.Entries[0].Rank, ShouldEqual, 1)
				So(lb.Entries[1].Rating, ShouldEqual, 1484)
				So(lb.Entries[1].Rank, ShouldEqual, 2)
			})

			Convey("Then resubmitting the same id is a no-op", func() {
				_, dup, err := svc.SubmitGame(ctx, game("g1", "Alice", 21, "Bob", 15))
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
				games, err := svc.RecentGames(ctx, 10)
				So(err, ShouldBeNil)
				So(games, ShouldHaveLength, 1)
				So(svc.GetStats(ctx).Duplicates, ShouldEqual, 1)
			})
		})

		Convey("A blank submission id is filled in", func() {
			g, _, err := svc.SubmitGame(ctx, game("", "Alice", 10, "Bob", 21))
			So(err, ShouldBeNil)
			So(g.ID, ShouldNotBeBlank)
		})

		Convey("Self-play is rejected and nothing is recorded", func() {
			_, _, err := svc.SubmitGame(ctx, game("s1", "Alice", 21, "Alice", 3))
			So(errors.Is(err, ledger.ErrSelfPlay), ShouldBeTrue)
			games, _ := svc.RecentGames(ctx, 10)
			So(games, ShouldBeEmpty)
		})

		Convey("A rejected submission can be retried under the same id", func() {
			_, _, err := svc.SubmitGame(ctx, game("late", "Alice", 21, "Carol", 3))
			So(errors.Is(err, ledger.ErrUnknownPlayer), ShouldBeTrue)

			So(svc.RegisterPlayer(ctx, "Carol"), ShouldBeNil)
			_, dup, err := svc.SubmitGame(ctx, game("late", "Alice", 21, "Carol", 3))
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
		})

		Convey("Names are matched without surrounding spaces", func() {
			_, _, err := svc.SubmitGame(ctx, game("pad", " Alice", 21, "Bob ", 4))
			So(err, ShouldBeNil)
			e, err := svc.Rank(ctx, "  Alice ")
			So(err, ShouldBeNil)
			So(e.Player, ShouldEqual, "Alice")
			So(e.Wins, ShouldEqual, 1)
			p, err := svc.Player(ctx, "Bob ")
			So(err, ShouldBeNil)
			So(p.Games, ShouldHaveLength, 1)
			w, err := svc.Simulate(ctx, " Alice", "Bob")
			So(err, ShouldBeNil)
			So(w.PlayerA, ShouldEqual, "Alice")
			_, err = svc.Simulate(ctx, "Alice ", " Alice")
			So(errors.Is(err, ledger.ErrSelfPlay), ShouldBeTrue)
		})

		Convey("Concurrent submissions are all applied", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 40)
			for i := range 40 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, err := svc.SubmitGame(ctx, game(fmt.Sprintf("c%02d", i), "Alice", 21, "Bob", i%21))
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}
			stats := svc.GetStats(ctx)
			So(stats.Games, ShouldEqual, 40)
			So(stats.Revision, ShouldEqual, uint64(42))
		})
	})
}

func TestService_Reads(t *testing.T) {
	Convey("Given a ledger with three players", t, func() {
		svc := started()
		defer svc.Stop()
		ctx := context.Background()
		for _, p := range []string{"Carol", "Alice", "Bob"} {
			So(svc.RegisterPlayer(ctx, p), ShouldBeNil)
		}
		for _, g := range []ledger.GameRecord{
			game("g1", "Alice", 21, "Bob", 10),
			game("g2", "Bob", 21, "Carol", 19),
		} {
			_, _, err := svc.SubmitGame(ctx, g)
			So(err, ShouldBeNil)
		}

		Convey("Players are listed sorted", func() {
			names, err := svc.Players(ctx)
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{"Alice", "Bob", "Carol"})
		})

		Convey("Recent games come newest first", func() {
			games, err := svc.RecentGames(ctx, 1)
			So(err, ShouldBeNil)
			So(games, ShouldHaveLength, 1)
			So(games[0].ID, ShouldEqual, "g2")
		})

		Convey("The snapshot has a baseline row and one row per game", func() {
			snap, err := svc.Snapshot(ctx)
			So(err, ShouldBeNil)
			So(snap.Players, ShouldResemble, []string{"Carol", "Alice", "Bob"})
			So(snap.Rows, ShouldHaveLength, 3)
			So(snap.Rows[0].Ratings["Alice"], ShouldEqual, 1500)
			So(snap.Rows[1].Ratings["Alice"], ShouldEqual, 1516)
		})

		Convey("Rank and Player find a known player", func() {
			e, err := svc.Rank(ctx, "Bob")
			So(err, ShouldBeNil)
			So(e.Player, ShouldEqual, "Bob")
			So(e.Games, ShouldEqual, 2)

			p, err := svc.Player(ctx, "Bob")
			So(err, ShouldBeNil)
			So(p.Games, ShouldHaveLength, 2)
			So(p.Games[0].Result, ShouldEqual, "loss")
			So(p.Games[1].Result, ShouldEqual, "win")
			So(p.History, ShouldHaveLength, 3)
		})

		Convey("Unknown players are reported", func() {
			_, err := svc.Rank(ctx, "Zed")
			So(errors.Is(err, ledger.ErrUnknownPlayer), ShouldBeTrue)
			_, err = svc.Player(ctx, "Zed")
			So(errors.Is(err, ledger.ErrUnknownPlayer), ShouldBeTrue)
		})

		Convey("Simulate leaves the ledger untouched", func() {
			before, err := svc.Leaderboard(ctx, 0)
			So(err, ShouldBeNil)
			res, err := svc.Simulate(ctx, "Carol", "Alice")
			So(err, ShouldBeNil)
			So(res.IfAWins.Winner, ShouldEqual, "Carol")
			So(res.IfBWins.Winner, ShouldEqual, "Alice")
			So(res.IfAWins.A.RatingDelta, ShouldBeGreaterThan, 0)

			after, err := svc.Leaderboard(ctx, 0)
			So(err, ShouldBeNil)
			So(after, ShouldResemble, before)

			_, err = svc.Simulate(ctx, "Carol", "Carol")
			So(errors.Is(err, ledger.ErrSelfPlay), ShouldBeTrue)
		})

		Convey("Leaderboard honours limit", func() {
			lb, err := svc.Leaderboard(ctx, 2)
			So(err, ShouldBeNil)
			So(lb.Entries, ShouldHaveLength, 2)
			So(lb.Total, ShouldEqual, 3)
		})
	})
}

func TestService_Conflicts(t *testing.T) {
	Convey("Given a store that conflicts on save", t, func() {
		ctx := context.Background()
		store := &conflictingStore{MemoryStore: repository.NewMemoryStore()}

		Convey("When conflicts stay within the retry budget", func() {
			svc := started(service.WithStore("memory", store), service.WithSaveRetries(3))
			defer svc.Stop()
			store.n.Store(2)
			err := svc.RegisterPlayer(ctx, "Alice")

			Convey("Then the write lands after retrying", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats(ctx).Conflicts, ShouldEqual, 2)
				names, _ := svc.Players(ctx)
				So(names, ShouldResemble, []string{"Alice"})
			})
		})

		Convey("When conflicts exceed the retry budget", func() {
			svc := started(service.WithStore("memory", store), service.WithSaveRetries(1))
			defer svc.Stop()
			store.n.Store(5)
			err := svc.RegisterPlayer(ctx, "Alice")

			Convey("Then the conflict reaches the caller", func() {
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				names, _ := svc.Players(ctx)
				So(names, ShouldBeEmpty)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a busy single writer and a one-slot queue", t, func() {
		ctx := context.Background()
		store := &gatedStore{
			MemoryStore: repository.NewMemoryStore(),
			entered:     make(chan struct{}),
			release:     make(chan struct{}),
		}
		svc := started(service.WithStore("memory", store), service.WithQueueSize(1))
		defer svc.Stop()

		store.armed.Store(true)
		results := make(chan error, 2)
		go func() { results <- svc.RegisterPlayer(ctx, "a") }()
		<-store.entered
		go func() { results <- svc.RegisterPlayer(ctx, "b") }()
		So(waitUntil(func() bool { return svc.GetStats(ctx).QueueSize == 1 }), ShouldBeTrue)

		Convey("Then further writes are refused", func() {
			So(errors.Is(svc.RegisterPlayer(ctx, "c"), service.ErrBackpressure), ShouldBeTrue)
			_, _, err := svc.SubmitGame(ctx, game("x", "a", 21, "b", 0))
			So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)

			close(store.release)
			So(<-results, ShouldBeNil)
			So(<-results, ShouldBeNil)

			Convey("And a refused submission id stays usable", func() {
				_, dup, err := svc.SubmitGame(ctx, game("x", "a", 21, "b", 0))
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
			})
		})
	})
}

func TestService_InflightResubmission(t *testing.T) {
	Convey("Given a submission held up in the writer", t, func() {
		ctx := context.Background()
		store := &gatedStore{
			MemoryStore: repository.NewMemoryStore(),
			entered:     make(chan struct{}),
			release:     make(chan struct{}),
		}
		svc := started(service.WithStore("memory", store))
		defer svc.Stop()
		So(svc.RegisterPlayer(ctx, "Alice"), ShouldBeNil)
		So(svc.RegisterPlayer(ctx, "Bob"), ShouldBeNil)

		type outcome struct {
			dup bool
			err error
		}
		submit := func(g ledger.GameRecord) <-chan outcome {
			out := make(chan outcome, 1)
			go func() {
				_, dup, err := svc.SubmitGame(ctx, g)
				out <- outcome{dup, err}
			}()
			return out
		}

		store.armed.Store(true)

		Convey("When the first attempt is rejected", func() {
			first := submit(game("r1", "Alice", 21, "Zed", 3))
			<-store.entered
			second := submit(game("r1", "Alice", 21, "Zed", 3))

			Convey("Then the retry waits and reports its own rejection", func() {
				var early *outcome
				select {
				case o := <-second:
					early = &o
				case <-time.After(50 * time.Millisecond):
				}
				So(early, ShouldBeNil)
				close(store.release)
				a := <-first
				b := outcome{}
				if early != nil {
					b = *early
				} else {
					b = <-second
				}
				So(errors.Is(a.err, ledger.ErrUnknownPlayer), ShouldBeTrue)
				So(errors.Is(b.err, ledger.ErrUnknownPlayer), ShouldBeTrue)
				So(b.dup, ShouldBeFalse)
				So(svc.GetStats(ctx).Duplicates, ShouldEqual, 0)
			})
		})

		Convey("When the first attempt is recorded", func() {
			first := submit(game("r2", "Alice", 21, "Bob", 3))
			<-store.entered
			second := submit(game("r2", "Alice", 21, "Bob", 3))
			close(store.release)
			a, b := <-first, <-second

			Convey("Then the retry is a duplicate of it", func() {
				So(a.err, ShouldBeNil)
				So(a.dup, ShouldBeFalse)
				So(b.err, ShouldBeNil)
				So(b.dup, ShouldBeTrue)
				games, err := svc.RecentGames(ctx, 10)
				So(err, ShouldBeNil)
				So(games, ShouldHaveLength, 1)
			})
		})
	})
}

func TestService_Persistence(t *testing.T) {
	Convey("Given a service over a csv store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.StoreDriver = config.DriverCSV
		cfg.StorePath = t.TempDir()
		opts, err := service.OptionsFromConfig(cfg)
		So(err, ShouldBeNil)

		svc := started(opts...)
		So(svc.RegisterPlayer(ctx, "Alice"), ShouldBeNil)
		So(svc.RegisterPlayer(ctx, "Bob"), ShouldBeNil)
		_, _, err = svc.SubmitGame(ctx, game("g1", "Alice", 21, "Bob", 7))
		So(err, ShouldBeNil)
		before, err := svc.Leaderboard(ctx, 0)
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("When a new service opens the same directory", func() {
			again := started(opts...)
			defer again.Stop()

			Convey("Then the leaderboard is identical", func() {
				after, err := again.Leaderboard(ctx, 0)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
			})

			Convey("Then earlier submission ids are still known", func() {
				_, dup, err := again.SubmitGame(ctx, game("g1", "Alice", 21, "Bob", 7))
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
			})
		})
	})

	Convey("Given a config naming an unknown metric", t, func() {
		cfg := config.New()
		cfg.LeaderboardMetrics = "rating,height"
		_, err := service.OptionsFromConfig(cfg)
		So(errors.Is(err, ranking.ErrUnknownMetric), ShouldBeTrue)
	})
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
