package simulate

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
)

// Run seeds an event, lets cfg.Judges judges score it concurrently, checks the
// server standings against a local recomputation and prints them to out.
// A mismatch is reported with ErrMismatch alongside the full report.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Report, error) {
	log := logger.Named("simulate")
	report := &Report{Stats: Stats{StartTime: time.Now()}}

	fixture := DefaultFixture()
	if cfg.FixturePath != "" {
		f, err := LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		fixture = f
	}
	judges := max(cfg.Judges, 1)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("event", fixture.Name),
		logger.Int("judges", judges),
		logger.Float64("rate", cfg.Rate))

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.health(ctx); err != nil {
		return nil, err
	}

	ev, err := c.createEvent(ctx, types.CreateEventRequest{Name: fixture.Name, Criteria: fixture.Criteria})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	report.EventID = ev.ID
	for _, w := range ev.Warnings {
		log.Warn(ctx, "event configuration warning", logger.String("code", w.Code), logger.String("message", w.Message))
	}

	names := fixture.contestantNames(max(cfg.Contestants, 1))
	contestants := make([]model.Contestant, 0, len(names))
	for _, name := range names {
		ct, err := c.register(ctx, ev.ID, name)
		if err != nil {
			return nil, fmt.Errorf("register %q: %w", name, err)
		}
		contestants = append(contestants, ct)
	}

	book := &ledger{}
	if err := submitAll(ctx, cfg, c, judges, ev.ID, contestants, ev.Criteria, book, &report.Stats); err != nil {
		return nil, err
	}
	log.Info(ctx, "submissions completed",
		logger.Int64("accepted", report.Stats.Accepted),
		logger.Int64("duplicate", report.Stats.Duplicate),
		logger.Int64("rescored", report.Stats.Rescored),
		logger.Int64("failed", report.Stats.Failed))

	standings, err := c.standings(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch standings: %w", err)
	}
	report.Standings = standings
	report.Stats.Mismatches = verify(standings, expected(book.snapshot(), contestants, ev.Criteria))

	if err := RenderStandings(out, standings, ev.Criteria, cfg.Color); err != nil {
		return nil, fmt.Errorf("render standings: %w", err)
	}

	if cfg.Advance {
		tr, err := c.advance(ctx, ev.ID)
		if err != nil {
			return nil, fmt.Errorf("advance round: %w", err)
		}
		report.Transition = fmt.Sprintf("%s -> %s (%d updates)", tr.From, tr.To, len(tr.Updates))
		if _, err := fmt.Fprintf(out, "advanced %s\n", report.Transition); err != nil {
			return nil, err
		}
	}

	report.Stats.EndTime = time.Now()
	report.Stats.Duration = report.Stats.EndTime.Sub(report.Stats.StartTime)
	displayFinalStats(ctx, log, &report.Stats)

	if report.Stats.Failed > 0 {
		report.Stats.Mismatches = append(report.Stats.Mismatches, fmt.Sprintf("%d submissions failed", report.Stats.Failed))
	}
	if len(report.Stats.Mismatches) > 0 {
		for _, m := range report.Stats.Mismatches {
			log.Error(ctx, "verification failed", logger.String("detail", m))
		}
		return report, fmt.Errorf("%w: %s", ErrMismatch, strings.Join(report.Stats.Mismatches, "; "))
	}
	log.Info(ctx, "standings verified", logger.Int("contestants", len(standings.Standings)))
	return report, nil
}

// submitAll runs one goroutine per judge. All judges share one limiter.
// Each judge replays its first submission id once, which must come back as
// a duplicate.
func submitAll(ctx context.Context, cfg *Config, c *client, judges int, eventID string,
	contestants []model.Contestant, criteria []model.Criterion, book *ledger, stats *Stats,
) error {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, max(cfg.Burst, 1))

	var submitted, accepted, duplicate, rescored, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for j := range judges {
		reqs := plan(cfg, j, eventID, contestants, criteria)
		g.Go(func() error {
			scored := make(map[string]bool, len(contestants))
			for i, req := range reqs {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				submitted.Add(1)
				res, err := c.submit(gctx, req)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					logger.Get().Warn(gctx, "submission failed", logger.String("judge", req.JudgeID), logger.Error(err))
					continue
				}
				if res.Duplicate {
					duplicate.Add(1)
					continue
				}
				accepted.Add(1)
				book.add(req)
				if scored[req.ContestantID] {
					rescored.Add(1)
				}
				scored[req.ContestantID] = true

				if i == 0 {
					submitted.Add(1)
					replay, err := c.submit(gctx, req)
					switch {
					case err != nil:
						failed.Add(1)
					case replay.Duplicate:
						duplicate.Add(1)
					default:
						failed.Add(1)
						logger.Get().Error(gctx, "replayed submission was accepted twice", logger.String("submissionID", req.SubmissionID))
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Submitted = submitted.Load()
	stats.Accepted = accepted.Load()
	stats.Duplicate = duplicate.Load()
	stats.Rescored = rescored.Load()
	stats.Failed = failed.Load()
	if err != nil {
		return fmt.Errorf("submit scores: %w", err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int64("submitted", stats.Submitted),
		logger.Int64("accepted", stats.Accepted),
		logger.Int64("duplicate", stats.Duplicate),
		logger.Int64("rescored", stats.Rescored),
		logger.Int64("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", math.Round(perSecond*100)/100))
}
