package replay_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/rating"
	"github.com/okian/paddle/internal/domain/replay"
	. "github.com/smartystreets/goconvey/convey"
)

func build(players []string, games ...ledger.GameRecord) *ledger.Ledger {
	l := &ledger.Ledger{}
	for _, p := range players {
		l.Players = append(l.Players, ledger.Player{Name: p, RegisteredAt: time.Unix(0, 0)})
	}
	l.Games = append(l.Games, games...)
	return l
}

func game(p1 string, s1 int, p2 string, s2 int) ledger.GameRecord {
	return ledger.GameRecord{Player1: p1, Score1: s1, Player2: p2, Score2: s2}
}

func TestReplay(t *testing.T) {
	Convey("Given a ledger with no games", t, func() {
		s, err := replay.Replay(build([]string{"Alice", "Bob"}))

		Convey("Then every player sits at the baseline in a single row", func() {
			So(err, ShouldBeNil)
			So(s.Rows(), ShouldEqual, 1)
			r, ok := s.Final("Alice")
			So(ok, ShouldBeTrue)
			So(r, ShouldEqual, 1500)
			So(s.Participation("Alice"), ShouldBeEmpty)
		})
	})

	Convey("Given Alice beats Bob", t, func() {
		s, err := replay.Replay(build([]string{"Alice", "Bob", "Carol"}, game("Alice", 21, "Bob", 12)))
		So(err, ShouldBeNil)

		Convey("Then the decisive update applies", func() {
			a, _ := s.Final("Alice")
			b, _ := s.Final("Bob")
			So(a, ShouldEqual, 1516)
			So(b, ShouldEqual, 1484)
		})

		Convey("And the bystander is carried forward", func() {
			So(s.History("Carol"), ShouldResemble, []int{1500, 1500})
		})

		Convey("And participation records the row", func() {
			So(s.Participation("Alice"), ShouldResemble, []int{1})
			So(s.Participation("Carol"), ShouldBeEmpty)
		})
	})

	Convey("Given Bob wins from the second seat", t, func() {
		s, err := replay.Replay(build([]string{"Alice", "Bob"}, game("Alice", 3, "Bob", 21)))
		So(err, ShouldBeNil)

		Convey("Then Bob gains", func() {
			b, _ := s.Final("Bob")
			So(b, ShouldEqual, 1516)
		})
	})

	Convey("Given a tie between two rated players", t, func() {
		l := build([]string{"Alice", "Bob"}, game("Alice", 21, "Bob", 10), game("Alice", 15, "Bob", 15))
		s, err := replay.Replay(l)
		So(err, ShouldBeNil)

		Convey("Then the tie row copies both ratings forward", func() {
			So(s.History("Alice"), ShouldResemble, []int{1500, 1516, 1516})
			So(s.History("Bob"), ShouldResemble, []int{1500, 1484, 1484})
			So(s.Participation("Bob"), ShouldResemble, []int{1, 2})
		})
	})

	Convey("Given a player registered after games were played", t, func() {
		l := build([]string{"Alice", "Bob"}, game("Alice", 21, "Bob", 10))
		l, err := l.RegisterPlayer("Dave", time.Unix(10, 0))
		So(err, ShouldBeNil)
		l, err = l.SubmitGame(game("Dave", 21, "Alice", 19))
		So(err, ShouldBeNil)

		s, err := replay.Replay(l)
		So(err, ShouldBeNil)

		Convey("Then their column exists from row 0 at baseline", func() {
			h := s.History("Dave")
			So(h, ShouldHaveLength, 3)
			So(h[0], ShouldEqual, 1500)
			So(h[1], ShouldEqual, 1500)
			So(h[2], ShouldBeGreaterThan, 1500)
		})
	})

	Convey("Given a ledger naming an unregistered player", t, func() {
		l := build([]string{"Alice"}, game("Alice", 21, "Ghost", 0))
		s, err := replay.Replay(l)

		Convey("Then replay fails before computing anything", func() {
			So(errors.Is(err, ledger.ErrUnknownPlayer), ShouldBeTrue)
			So(s, ShouldBeNil)
		})
	})

	Convey("Given a self-play record", t, func() {
		_, err := replay.Replay(build([]string{"Alice"}, game("Alice", 21, "Alice", 0)))

		Convey("Then replay fails", func() {
			So(errors.Is(err, ledger.ErrSelfPlay), ShouldBeTrue)
		})
	})
}

func TestReplayProperties(t *testing.T) {
	Convey("Given a longer ledger", t, func() {
		players := []string{"Alice", "Bob", "Carol", "Dave"}
		var games []ledger.GameRecord
		for i := range 40 {
			p1, p2 := players[i%4], players[(i*3+1)%4]
			if p1 == p2 {
				p2 = players[(i+2)%4]
			}
			games = append(games, game(p1, 21, p2, (i*7)%23))
		}
		l := build(players, games...)

		Convey("Replay is deterministic", func() {
			a, err := replay.Replay(l)
			So(err, ShouldBeNil)
			b, err := replay.Replay(l)
			So(err, ShouldBeNil)
			So(a, ShouldResemble, b)
		})

		Convey("Each row changes at most the two participants", func() {
			s, err := replay.Replay(l)
			So(err, ShouldBeNil)
			for row := 1; row < s.Rows(); row++ {
				g := l.Games[row-1]
				for _, p := range players {
					if g.Involves(p) {
						continue
					}
					prev, _ := s.Rating(p, row-1)
					cur, _ := s.Rating(p, row)
					So(cur, ShouldEqual, prev)
				}
			}
		})

		Convey("Replay does not touch the ledger", func() {
			before := l.Clone()
			_, err := replay.Replay(l)
			So(err, ShouldBeNil)
			So(l, ShouldResemble, before)
		})
	})
}

type flat struct{}

func (flat) Update(a, b int, o rating.Outcome) (int, int) {
	if o == rating.Win {
		return a + 1, b - 1
	}
	return a - 1, b + 1
}

func TestEngineOptions(t *testing.T) {
	Convey("Given an engine with a custom model and baseline", t, func() {
		e := replay.New(replay.WithModel(flat{}), replay.WithBaseline(1000))
		s, err := e.Replay(build([]string{"Alice", "Bob"}, game("Alice", 1, "Bob", 0)))

		Convey("Then both are used", func() {
			So(err, ShouldBeNil)
			So(e.Baseline(), ShouldEqual, 1000)
			So(s.History("Alice"), ShouldResemble, []int{1000, 1001})
			So(s.Row(1), ShouldResemble, map[string]int{"Alice": 1001, "Bob": 999})
		})

		Convey("Out of range lookups report false", func() {
			_, ok := s.Rating("Alice", 5)
			So(ok, ShouldBeFalse)
			_, ok = s.Rating("Nobody", 0)
			So(ok, ShouldBeFalse)
			So(s.Row(-1), ShouldBeNil)
		})
	})
}
