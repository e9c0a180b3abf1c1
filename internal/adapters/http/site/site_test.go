package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a mux with the scoreboard registered", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		Convey("Then the page is served at the root", func() {
			w := get("/?event=abc")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "Podium Live")
		})

		Convey("And the script follows the live stream", func() {
			w := get("/board.js")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "/live/stream")
			So(w.Body.String(), ShouldContainSubstring, "standings")
		})

		Convey("And the script renders per-criterion averages", func() {
			body := get("/board.js").Body.String()
			So(body, ShouldContainSubstring, "perCriterionAverage")
			So(body, ShouldContainSubstring, "—")
			So(body, ShouldContainSubstring, "view.stale")
			So(get("/").Body.String(), ShouldContainSubstring, `id="head"`)
		})

		Convey("And other paths are not claimed", func() {
			So(get("/some-asset").Code, ShouldEqual, http.StatusNotFound)
			So(get("/index.html").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And writes are rejected", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a nil mux", t, func() {
		Convey("Then Register panics", func() {
			So(func() { Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
