package simulate_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/http/api"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/simulate"
	"github.com/okian/podium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func startServer() *httptest.Server {
	ctx := context.Background()
	svc := service.New(service.WithWorkerCount(2))
	So(svc.Start(ctx), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	Reset(func() {
		srv.Close()
		svc.Stop(context.Background())
	})
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv := startServer()
		var out bytes.Buffer

		Convey("When four judges score five contestants with re-scores", func() {
			cfg := &simulate.Config{
				BaseURL:      srv.URL,
				Judges:       4,
				Contestants:  5,
				RescoreRatio: 0.5,
				Timeout:      5 * time.Second,
				Seed:         7,
			}
			report, err := simulate.Run(context.Background(), cfg, &out)

			Convey("Then the server standings match the local recomputation", func() {
				So(err, ShouldBeNil)
				So(report.Stats.Mismatches, ShouldBeEmpty)
				So(report.Stats.Failed, ShouldEqual, 0)
				So(report.Standings.Standings, ShouldHaveLength, 5)
				So(report.Standings.Standings[0].JudgeCount, ShouldEqual, 4)
				So(report.Standings.Standings[0].Leading, ShouldBeTrue)
			})

			Convey("Then every replayed submission is acknowledged as duplicate", func() {
				So(report.Stats.Duplicate, ShouldEqual, 4)
				So(report.Stats.Accepted, ShouldEqual, 20+report.Stats.Rescored)
			})

			Convey("Then the table lists every contestant", func() {
				text := out.String()
				So(text, ShouldContainSubstring, "Contestant 01")
				So(text, ShouldContainSubstring, "Contestant 05")
				So(strings.ToUpper(text), ShouldContainSubstring, "VOCAL QUALITY (40%)")
			})
		})

		Convey("When the run is paced and advances the round", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "fixture.yaml")
			fixture := `name: Duo Night
criteria:
  - {name: Harmony, weight: 60, enabled: true}
  - {name: Timing, weight: 40, enabled: true}
contestants: [Ada, Bo, Cy]
`
			So(os.WriteFile(path, []byte(fixture), 0o600), ShouldBeNil)

			cfg := &simulate.Config{
				BaseURL:     srv.URL,
				FixturePath: path,
				Judges:      2,
				Rate:        200,
				Burst:       5,
				Timeout:     5 * time.Second,
				Seed:        1,
				Advance:     true,
			}
			report, err := simulate.Run(context.Background(), cfg, &out)

			Convey("Then the fixture contestants are ranked and the round moves on", func() {
				So(err, ShouldBeNil)
				So(report.Standings.Standings, ShouldHaveLength, 3)
				So(report.Transition, ShouldStartWith, "preliminary -> semi-final")
				So(strings.ToUpper(out.String()), ShouldContainSubstring, "HARMONY (60%)")
				So(out.String(), ShouldContainSubstring, "advanced")
			})
		})

		Convey("When the fixture file is missing", func() {
			cfg := &simulate.Config{BaseURL: srv.URL, FixturePath: "/does/not/exist.yaml", Judges: 1}
			_, err := simulate.Run(context.Background(), cfg, &out)

			Convey("Then the run fails before contacting the server", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unhealthy server", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		Reset(srv.Close)

		Convey("When a run starts", func() {
			_, err := simulate.Run(context.Background(), &simulate.Config{BaseURL: srv.URL, Judges: 1, Timeout: time.Second}, io.Discard)

			Convey("Then it stops at the health check", func() {
				So(errors.Is(err, simulate.ErrUnhealthy), ShouldBeTrue)
			})
		})
	})
}

func TestParseFixture(t *testing.T) {
	Convey("Given fixture documents", t, func() {
		Convey("When the fixture is complete", func() {
			f, err := simulate.ParseFixture([]byte("name: Gala\ncriteria:\n  - {id: voc, name: Vocal, weight: 100, enabled: true}\ncontestants: [A]\n"))

			Convey("Then criteria keep their ids", func() {
				So(err, ShouldBeNil)
				So(f.Name, ShouldEqual, "Gala")
				So(f.Criteria, ShouldResemble, []model.Criterion{{ID: "voc", Name: "Vocal", Weight: 100, Enabled: true}})
				So(f.Contestants, ShouldResemble, []string{"A"})
			})
		})

		Convey("When the name is missing", func() {
			_, err := simulate.ParseFixture([]byte("criteria:\n  - {name: Vocal, weight: 100}\n"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, simulate.ErrInvalidFixture), ShouldBeTrue)
			})
		})

		Convey("When there are no criteria", func() {
			_, err := simulate.ParseFixture([]byte("name: Gala\n"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, simulate.ErrInvalidFixture), ShouldBeTrue)
			})
		})

		Convey("When the document is not YAML", func() {
			_, err := simulate.ParseFixture([]byte("name: [unclosed"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, simulate.ErrInvalidFixture), ShouldBeTrue)
			})
		})
	})
}

func TestRenderStandings(t *testing.T) {
	Convey("Given standings with an unscored criterion", t, func() {
		vocal := 50.0
		st := types.Standings{
			EventID: "ev",
			Standings: []types.Standing{
				{Rank: 1, ContestantID: "b", Name: "Bo", Status: model.StatusRegistered, TotalWeighted: 20,
					PerCriterionAverage: map[string]*float64{"vocal": &vocal, "crowd": nil}, JudgeCount: 1, Leading: true},
				{Rank: 2, ContestantID: "a", Name: "Ada", Status: model.StatusRegistered,
					PerCriterionAverage: map[string]*float64{"vocal": nil, "crowd": nil}},
			},
		}
		criteria := []model.Criterion{
			{ID: "vocal", Name: "Vocal", Weight: 40, Enabled: true},
			{ID: "crowd", Name: "Crowd", Weight: 60, Enabled: true},
			{ID: "hat", Name: "Hat", Weight: 0, Enabled: false},
		}

		Convey("When it is rendered without color", func() {
			var buf bytes.Buffer
			So(simulate.RenderStandings(&buf, st, criteria, false), ShouldBeNil)
			text := buf.String()

			Convey("Then enabled criteria become columns", func() {
				upper := strings.ToUpper(text)
				So(upper, ShouldContainSubstring, "VOCAL (40%)")
				So(upper, ShouldContainSubstring, "CROWD (60%)")
				So(upper, ShouldNotContainSubstring, "HAT")
			})

			Convey("Then unscored cells show the placeholder", func() {
				So(text, ShouldContainSubstring, types.NotScored)
				So(text, ShouldContainSubstring, "50.00")
				So(text, ShouldContainSubstring, "20.00")
			})
		})
	})
}
