package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given an initialized logger", t, func() {
		So(Init(), ShouldBeNil)
		defer func() { So(Sync(), ShouldBeNil) }()

		Convey("Then Get returns a usable logger", func() {
			l := Get()
			So(l, ShouldNotBeNil)
			So(func() { l.Info(context.Background(), "hello", String("k", "v")) }, ShouldNotPanic)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Get().Info(ctx, "game submitted", String("player", "alice"), Int("score", 21), Error(errors.New("boom")))

			Convey("Then the record carries message, fields and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "game submitted")
				So(out, ShouldContainSubstring, "player=alice")
				So(out, ShouldContainSubstring, "score=21")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			defer func() { _ = SetLevelString("info") }()
			Get().Info(ctx, "quiet")
			Get().Warn(ctx, "loud")

			Convey("Then info records are dropped", func() {
				So(buf.String(), ShouldNotContainSubstring, "quiet")
				So(buf.String(), ShouldContainSubstring, "loud")
			})
		})

		Convey("When using a named logger", func() {
			Named("replay").Info(ctx, "named")

			Convey("Then the component is attached", func() {
				So(buf.String(), ShouldContainSubstring, "component=replay")
			})
		})

		Convey("When an unknown level is given", func() {
			err := SetLevelString("loud")

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestDiscard(t *testing.T) {
	Convey("Discard swallows everything", t, func() {
		l := Discard()
		So(func() { l.Error(context.Background(), "nothing", Bool("ok", true)) }, ShouldNotPanic)
	})
}
