package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paddle/internal/adapters/repository"
	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

func fixture() (*ledger.Ledger, ranking.Board) {
	l := ledger.New()
	for i, p := range []string{"Alice", "Bob", "Carol"} {
		l, _ = l.RegisterPlayer(p, t0.Add(time.Duration(i)*time.Second))
	}
	for i, g := range []ledger.GameRecord{
		{ID: "g1", Player1: "Alice", Score1: 21, Player2: "Bob", Score2: 12},
		{ID: "g2", Player1: "Carol", Score1: 18, Player2: "Alice", Score2: 21},
		{ID: "g3", Player1: "Bob", Score1: 15, Player2: "Carol", Score2: 15},
	} {
		g.Timestamp = t0.Add(time.Duration(i+1) * time.Minute)
		l, _ = l.SubmitGame(g)
	}
	_, b, err := ranking.Compute(l)
	if err != nil {
		panic(err)
	}
	return l, b
}

// behavesLikeAStore runs the contract every backend must satisfy. Revisions
// are checked relative to the first load so shared databases can be reused.
func behavesLikeAStore(s repository.Store) {
	ctx := context.Background()
	start, err := s.Load(ctx)
	So(err, ShouldBeNil)
	base := start.Revision

	Convey("An empty store loads an empty ledger", func() {
		So(start.Players, ShouldBeEmpty)
		So(start.Games, ShouldBeEmpty)
	})

	Convey("When a ledger is saved", func() {
		l, b := fixture()
		l.Revision = base
		So(s.Save(ctx, l, b), ShouldBeNil)

		Convey("Then the revision advances", func() {
			So(l.Revision, ShouldEqual, base+1)
		})

		Convey("Then it loads back in order with every player", func() {
			got, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(got.Revision, ShouldEqual, base+1)
			So(got.Players, ShouldResemble, l.Players)
			So(got.Games, ShouldResemble, l.Games)
		})

		Convey("Then a save based on a stale read conflicts and changes nothing", func() {
			stale := l.Clone()
			stale.Revision = base
			stale, _ = stale.RegisterPlayer("Mallory", t0)
			err := s.Save(ctx, stale, b)
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

			got, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(got.HasPlayer("Mallory"), ShouldBeFalse)
			So(got.Revision, ShouldEqual, base+1)
		})

		Convey("Then a late registration and another game round trip", func() {
			cur, err := s.Load(ctx)
			So(err, ShouldBeNil)
			cur, err = cur.RegisterPlayer("Dave", t0.Add(time.Hour))
			So(err, ShouldBeNil)
			cur, err = cur.SubmitGame(ledger.GameRecord{ID: "g4", Timestamp: t0.Add(2 * time.Hour), Player1: "Dave", Score1: 21, Player2: "Bob", Score2: 3})
			So(err, ShouldBeNil)
			_, b2, err := ranking.Compute(cur)
			So(err, ShouldBeNil)
			So(s.Save(ctx, cur, b2), ShouldBeNil)

			got, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(got.Revision, ShouldEqual, base+2)
			So(got.PlayerNames(), ShouldResemble, []string{"Alice", "Bob", "Carol", "Dave"})
			So(got.Games, ShouldHaveLength, 4)
			So(got.Games[3].ID, ShouldEqual, "g4")
		})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		s := repository.NewMemoryStore()
		behavesLikeAStore(s)

		Convey("Loaded ledgers are copies", func() {
			l, b := fixture()
			So(s.Save(context.Background(), l, b), ShouldBeNil)
			got, _ := s.Load(context.Background())
			got.Games[0].Score1 = 0
			again, _ := s.Load(context.Background())
			So(again.Games[0].Score1, ShouldEqual, 21)
			So(s.Board().Entries, ShouldHaveLength, 3)
		})
	})
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	Convey("Given many writers racing from the same revision", t, func() {
		s := repository.NewMemoryStore()
		ctx := context.Background()
		var ok, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l, _ := s.Load(ctx)
				l, _ = l.RegisterPlayer(fmt.Sprintf("p%02d", i), t0)
				err := s.Save(ctx, l, ranking.Board{})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, repository.ErrConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then every save either lands or conflicts, and the revision counts the winners", func() {
			So(ok.Load()+conflicts.Load(), ShouldEqual, 16)
			So(ok.Load(), ShouldBeGreaterThanOrEqualTo, 1)
			l, _ := s.Load(ctx)
			So(l.Revision, ShouldEqual, uint64(ok.Load()))
			So(l.Players, ShouldHaveLength, int(ok.Load()))
		})
	})
}

func TestCSVStore(t *testing.T) {
	Convey("Given a csv store", t, func() {
		dir := t.TempDir()
		s, err := repository.NewCSVStore(dir)
		So(err, ShouldBeNil)
		behavesLikeAStore(s)

		Convey("The game log keeps the spreadsheet layout", func() {
			l, b := fixture()
			So(s.Save(context.Background(), l, b), ShouldBeNil)
			So(repository.CSVRevisionDir(s, 1), ShouldEqual, filepath.Join(dir, "rev-1"))
			raw, err := os.ReadFile(filepath.Join(repository.CSVRevisionDir(s, 1), "game_log.csv"))
			So(err, ShouldBeNil)
			lines := splitLines(string(raw))
			So(lines, ShouldHaveLength, 5)
			So(lines[0], ShouldEqual, "Timestamp,P1_Name,P1_Score,P2_Name,P2_Score,Alice,Bob,Carol")
			So(lines[1], ShouldEqual, ",,,,,1500,1500,1500")
			So(lines[2], ShouldEqual, "2024-06-01T18:31:00Z,Alice,21,Bob,12,1516,1484,1500")

			lb, err := os.ReadFile(filepath.Join(repository.CSVRevisionDir(s, 1), "leaderboard.csv"))
			So(err, ShouldBeNil)
			So(splitLines(string(lb))[0], ShouldStartWith, "Rank,Player,Composite Z-Score")
		})

		Convey("A game log that disagrees with the players file is corrupt", func() {
			l, b := fixture()
			So(s.Save(context.Background(), l, b), ShouldBeNil)
			So(os.WriteFile(filepath.Join(repository.CSVRevisionDir(s, 1), "players.csv"), []byte("Player,Registered_At\nZed,2024-01-01T00:00:00Z\n"), 0o644), ShouldBeNil)
			_, err := s.Load(context.Background())
			So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
		})

		Convey("A save that fails part way leaves the previous revision in place", func() {
			ctx := context.Background()
			first := ledger.New()
			first, _ = first.RegisterPlayer("A", t0)
			first, _ = first.RegisterPlayer("B", t0)
			_, b, err := ranking.Compute(first)
			So(err, ShouldBeNil)
			So(s.Save(ctx, first, b), ShouldBeNil)
			So(first.Revision, ShouldEqual, 1)

			second, _ := first.RegisterPlayer("C", t0.Add(time.Second))
			second, err = second.SubmitGame(ledger.GameRecord{
				ID: "g1", Timestamp: t0.Add(time.Minute),
				Player1: "A", Score1: 21, Player2: "C", Score2: 9,
			})
			So(err, ShouldBeNil)
			_, b, err = ranking.Compute(second)
			So(err, ShouldBeNil)

			boom := errors.New("disk full")
			repository.FailCSVWrite(s, "leaderboard.csv", boom)
			So(errors.Is(s.Save(ctx, second, b), boom), ShouldBeTrue)
			So(second.Revision, ShouldEqual, 1)

			got, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(got.Revision, ShouldEqual, 1)
			So(got.PlayerNames(), ShouldResemble, []string{"A", "B"})
			So(got.Games, ShouldBeEmpty)
			_, err = os.Stat(repository.CSVRevisionDir(s, 2))
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)

			Convey("And the next save still lands", func() {
				repository.FailCSVWrite(s, "", nil)
				So(s.Save(ctx, second, b), ShouldBeNil)
				got, err := s.Load(ctx)
				So(err, ShouldBeNil)
				So(got.Revision, ShouldEqual, 2)
				So(got.Games, ShouldHaveLength, 1)
				_, err = os.Stat(repository.CSVRevisionDir(s, 1))
				So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			})
		})
	})
}

func TestBoltStore(t *testing.T) {
	Convey("Given a bolt store", t, func() {
		s, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "ledger.bolt"))
		So(err, ShouldBeNil)
		Reset(func() { s.Close() })
		behavesLikeAStore(s)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		s, err := repository.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		So(err, ShouldBeNil)
		Reset(func() { s.Close() })
		behavesLikeAStore(s)
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PADDLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PADDLE_TEST_POSTGRES_DSN not set")
	}
	Convey("Given a postgres store", t, func() {
		ctx := context.Background()
		s, err := repository.NewPostgresStore(ctx, dsn)
		So(err, ShouldBeNil)
		// Start every case from an empty ledger.
		So(resetPostgres(ctx, s), ShouldBeNil)
		Reset(func() { s.Close() })
		behavesLikeAStore(s)
	})
}

func resetPostgres(ctx context.Context, s *repository.PostgresStore) error {
	l, err := s.Load(ctx)
	if err != nil {
		return err
	}
	empty := ledger.New()
	empty.Revision = l.Revision
	return s.Save(ctx, empty, ranking.Board{})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PADDLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PADDLE_TEST_REDIS_ADDR not set")
	}
	Convey("Given a redis store on a fresh key", t, func() {
		s, err := repository.NewRedisStore(context.Background(), addr, "paddle:test:"+uuid.NewString())
		So(err, ShouldBeNil)
		Reset(func() { s.Close() })
		behavesLikeAStore(s)
	})
}

func TestOpen(t *testing.T) {
	Convey("Given Open", t, func() {
		ctx := context.Background()

		Convey("An unknown driver is rejected", func() {
			_, err := repository.Open(ctx, "excel")
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})

		Convey("File drivers accept a directory", func() {
			dir := t.TempDir()
			for _, d := range []string{repository.DriverMemory, repository.DriverCSV, repository.DriverBolt, repository.DriverSQLite} {
				s, err := repository.Open(ctx, d, repository.WithPath(filepath.Join(dir, d)))
				So(err, ShouldBeNil)
				l, err := s.Load(ctx)
				So(err, ShouldBeNil)
				So(l.Revision, ShouldEqual, uint64(0))
				So(s.Close(), ShouldBeNil)
			}
			_, err := os.Stat(filepath.Join(dir, repository.DriverBolt, "paddle.bolt"))
			So(err, ShouldBeNil)
		})

		Convey("Instrumented stores still report conflicts", func() {
			s, err := repository.Open(ctx, repository.DriverMemory)
			So(err, ShouldBeNil)
			l, b := fixture()
			l.Revision = 7
			So(errors.Is(s.Save(ctx, l, b), repository.ErrConflict), ShouldBeTrue)
		})
	})
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			line := s[start:i]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			out = append(out, line)
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
