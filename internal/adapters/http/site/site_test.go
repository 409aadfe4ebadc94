package site_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/okian/paddle/internal/adapters/http/site"
	service "github.com/okian/paddle/internal/app"
	"github.com/okian/paddle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return w
}

func post(h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSite(t *testing.T) {
	Convey("Given the site over a running service", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		r := chi.NewRouter()
		site.New(svc, site.WithRecentGames(5)).Register(r)

		for _, name := range []string{"Alice", "Bob"} {
			w := post(r, "/register", url.Values{"new_player": {name}})
			So(w.Code, ShouldEqual, http.StatusSeeOther)
			So(w.Header().Get("Location"), ShouldEqual, "/")
		}

		Convey("The empty home page lists players without games", func() {
			w := get(r, "/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/html")
			body := w.Body.String()
			So(body, ShouldContainSubstring, `<a href="/player/Alice">Alice</a>`)
			So(body, ShouldContainSubstring, "No games yet.")
		})

		Convey("A submitted score shows up on the home and player pages", func() {
			form := get(r, "/submit_score")
			So(form.Code, ShouldEqual, http.StatusOK)
			So(form.Body.String(), ShouldContainSubstring, `name="submission_id"`)

			w := post(r, "/submit_score", url.Values{
				"p1_name": {"Alice"}, "p1_score": {"21"},
				"p2_name": {"Bob"}, "p2_score": {"12"},
				"submission_id": {"form-1"},
			})
			So(w.Code, ShouldEqual, http.StatusSeeOther)

			home := get(r, "/").Body.String()
			So(home, ShouldContainSubstring, "1516")
			So(home, ShouldContainSubstring, "1484")
			So(home, ShouldNotContainSubstring, "No games yet.")

			p := get(r, "/player/Alice")
			So(p.Code, ShouldEqual, http.StatusOK)
			So(p.Body.String(), ShouldContainSubstring, "21-12")
			So(p.Body.String(), ShouldContainSubstring, "win")

			Convey("And resubmitting the same form is ignored", func() {
				again := post(r, "/submit_score", url.Values{
					"p1_name": {"Alice"}, "p1_score": {"21"},
					"p2_name": {"Bob"}, "p2_score": {"12"},
					"submission_id": {"form-1"},
				})
				So(again.Code, ShouldEqual, http.StatusSeeOther)
				games, err := svc.RecentGames(context.Background(), 10)
				So(err, ShouldBeNil)
				So(games, ShouldHaveLength, 1)
			})
		})

		Convey("Picking the same player twice redirects home without a game", func() {
			w := post(r, "/submit_score", url.Values{
				"p1_name": {"Alice"}, "p1_score": {"21"},
				"p2_name": {"Alice"}, "p2_score": {"3"},
			})
			So(w.Code, ShouldEqual, http.StatusSeeOther)
			games, err := svc.RecentGames(context.Background(), 10)
			So(err, ShouldBeNil)
			So(games, ShouldBeEmpty)
		})

		Convey("Non-numeric scores re-render the form", func() {
			w := post(r, "/submit_score", url.Values{
				"p1_name": {"Alice"}, "p1_score": {"lots"},
				"p2_name": {"Bob"}, "p2_score": {"3"},
			})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "scores must be whole numbers")
		})

		Convey("Registering a taken name shows the error", func() {
			w := post(r, "/register", url.Values{"new_player": {"Alice"}})
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, "duplicate player")
		})

		Convey("The player picker redirects to the player page", func() {
			w := post(r, "/", url.Values{"player": {"Bob"}})
			So(w.Code, ShouldEqual, http.StatusSeeOther)
			So(w.Header().Get("Location"), ShouldEqual, "/player/Bob")
		})

		Convey("An unknown player page is not found", func() {
			w := get(r, "/player/Zed")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, "No player called Zed")
		})

		Convey("The calculator projects both outcomes", func() {
			blank := get(r, "/calculator")
			So(blank.Code, ShouldEqual, http.StatusOK)
			So(blank.Body.String(), ShouldNotContainSubstring, "expected to win")

			w := post(r, "/calculator", url.Values{"p1_name": {"Alice"}, "p2_name": {"Bob"}})
			So(w.Code, ShouldEqual, http.StatusOK)
			body := w.Body.String()
			So(body, ShouldContainSubstring, "Alice is expected to win 50.00% of games against Bob.")
			So(body, ShouldContainSubstring, "Alice wins")
			So(body, ShouldContainSubstring, "Bob wins")
			So(body, ShouldContainSubstring, "+16")

			same := get(r, "/calculator?p1_name=Alice&p2_name=Alice")
			So(same.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
