package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCommandApply(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given an empty ledger", t, func() {
		l := ledger.New()

		Convey("When applying a registration", func() {
			next, dup, err := model.NewRegisterPlayer("Alice", at).Apply(l)

			Convey("Then the player is registered with the command time", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(next.Players, ShouldResemble, []ledger.Player{{Name: "Alice", RegisteredAt: at}})
			})
		})

		Convey("When applying a submission naming unknown players", func() {
			_, _, err := model.NewSubmitGame(ledger.GameRecord{Player1: "A", Player2: "B", Score1: 1}, at).Apply(l)

			Convey("Then the ledger error comes back", func() {
				So(errors.Is(err, ledger.ErrUnknownPlayer), ShouldBeTrue)
			})
		})
	})

	Convey("Given a ledger with one submitted game", t, func() {
		l := &ledger.Ledger{Players: []ledger.Player{{Name: "A"}, {Name: "B"}}}
		cmd := model.NewSubmitGame(ledger.GameRecord{ID: "sub-1", Player1: "A", Score1: 21, Player2: "B", Score2: 3}, at)
		next, dup, err := cmd.Apply(l)
		So(err, ShouldBeNil)
		So(dup, ShouldBeFalse)

		Convey("Then the game carries the submission id and a default timestamp", func() {
			So(next.Games[0].ID, ShouldEqual, "sub-1")
			So(next.Games[0].Timestamp, ShouldEqual, at)
		})

		Convey("When the same submission is applied again", func() {
			again, dup, err := cmd.Apply(next)

			Convey("Then it is reported as a duplicate and nothing changes", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
				So(again, ShouldPointTo, next)
				So(again.Games, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a submission without an id", t, func() {
		cmd := model.NewSubmitGame(ledger.GameRecord{Player1: "A", Player2: "B"}, at)

		Convey("Then one is generated", func() {
			So(cmd.Game.ID, ShouldNotBeEmpty)
			So(cmd.Kind, ShouldEqual, model.KindSubmitGame)
		})
	})

	Convey("Given a command of unknown kind", t, func() {
		_, _, err := model.Command{Kind: "rename"}.Apply(ledger.New())
		So(errors.Is(err, model.ErrUnknownKind), ShouldBeTrue)
	})
}

func TestCommandReply(t *testing.T) {
	Convey("Given a command", t, func() {
		cmd := model.NewRegisterPlayer("Alice", time.Now())

		Convey("When it is answered", func() {
			cmd.Respond(model.Reply{Attempts: 2})
			cmd.Respond(model.Reply{Attempts: 9})
			r, err := cmd.Wait(context.Background())

			Convey("Then the first reply is delivered and later ones are dropped", func() {
				So(err, ShouldBeNil)
				So(r.Attempts, ShouldEqual, 2)
			})
		})

		Convey("When the reply carries an error", func() {
			cmd.Respond(model.Reply{Err: ledger.ErrDuplicatePlayer})
			_, err := cmd.Wait(context.Background())

			Convey("Then Wait returns it", func() {
				So(errors.Is(err, ledger.ErrDuplicatePlayer), ShouldBeTrue)
			})
		})

		Convey("When the caller gives up first", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := cmd.Wait(ctx)

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})

	Convey("Given a zero command", t, func() {
		_, err := model.Command{}.Wait(context.Background())
		So(errors.Is(err, model.ErrNoReply), ShouldBeTrue)
	})
}
