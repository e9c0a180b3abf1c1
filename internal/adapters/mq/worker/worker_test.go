package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	logging "github.com/okian/podium/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logging.Init(logging.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// recorder remembers processed jobs per event in processing order.
type recorder struct {
	mu      sync.Mutex
	byEvent map[string][]string
	fail    map[string]error
	total   int
}

func newRecorder() *recorder {
	return &recorder{byEvent: make(map[string][]string), fail: make(map[string]error)}
}

func (r *recorder) Process(_ context.Context, j worker.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[j.ContestantID]; ok {
		return err
	}
	r.byEvent[j.EventID] = append(r.byEvent[j.EventID], j.ContestantID)
	r.total++
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *recorder) events(eventID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.byEvent[eventID]...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		rec := newRecorder()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		convey.Reset(cancel)
		go w.Run(ctx)

		convey.Convey("When a job fails", func() {
			rec.fail["bad"] = errors.New("store unavailable")
			q.Enqueue(ctx, queue.Job{EventID: "e1", ContestantID: "bad", Kind: queue.KindContestant})
			q.Enqueue(ctx, queue.Job{EventID: "e1", ContestantID: "good", Kind: queue.KindContestant})

			convey.Convey("Then later jobs are still processed", func() {
				convey.So(waitFor(func() bool { return rec.count() == 1 }), convey.ShouldBeTrue)
				convey.So(rec.events("e1"), convey.ShouldResemble, []string{"good"})
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully and twice is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a processor function", t, func() {
		var got worker.Job
		p := worker.ProcessorFunc(func(_ context.Context, j worker.Job) error {
			got = j
			return nil
		})

		convey.Convey("Then it adapts to Processor", func() {
			job := worker.Job{EventID: "e1", Kind: queue.KindRefresh}
			convey.So(p.Process(context.Background(), job), convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, job)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		rec := newRecorder()

		convey.Convey("When created without a count", func() {
			pool := worker.NewPool(0, q, rec)

			convey.Convey("Then it has at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When routing events", func() {
			pool := worker.NewPool(4, q, rec)

			convey.Convey("Then an event always maps to the same shard", func() {
				for i := range 20 {
					id := fmt.Sprint("event-", i)
					shard := pool.ShardFor(id)
					convey.So(shard, convey.ShouldBeBetweenOrEqual, 0, 3)
					convey.So(pool.ShardFor(id), convey.ShouldEqual, shard)
				}
			})
		})

		convey.Convey("When jobs of several events are processed", func() {
			pool := worker.NewPool(4, q, rec)
			ctx, cancel := context.WithCancel(context.Background())
			convey.Reset(cancel)
			pool.Start(ctx)

			const events, perEvent = 5, 50
			for e := range events {
				for c := range perEvent {
					ok := q.Enqueue(ctx, queue.Job{
						EventID:      fmt.Sprint("event-", e),
						ContestantID: fmt.Sprintf("c%03d", c),
						Kind:         queue.KindContestant,
					})
					convey.So(ok, convey.ShouldBeTrue)
				}
			}

			convey.Convey("Then each event sees its jobs in enqueue order", func() {
				convey.So(waitFor(func() bool { return rec.count() == events*perEvent }), convey.ShouldBeTrue)
				for e := range events {
					got := rec.events(fmt.Sprint("event-", e))
					convey.So(len(got), convey.ShouldEqual, perEvent)
					for i := 1; i < len(got); i++ {
						convey.So(got[i-1] < got[i], convey.ShouldBeTrue)
					}
				}
			})

			convey.Convey("Then shutdown drains and closes the queue", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(rec.count(), convey.ShouldEqual, events*perEvent)
			})
		})
	})
}
