package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/podium/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When created with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording submission ids", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the id is new", func() {
				seen := d.SeenAndRecord(ctx, "sub-1")

				Convey("Then it should return false and record the id", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id was already seen", func() {
				d.SeenAndRecord(ctx, "sub-1")
				seen := d.SeenAndRecord(ctx, "sub-1")

				Convey("Then it should return true without growing", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording keys", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10))
			for _, k := range []string{"a", "b", "c"} {
				d.SeenAndRecord(ctx, k)
			}

			Convey("And the key is in the middle", func() {
				d.Unrecord(ctx, "b")

				Convey("Then only that key is forgotten", func() {
					So(d.Size(), ShouldEqual, 2)
					So(d.SeenAndRecord(ctx, "b"), ShouldBeFalse)
					So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
					So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				})
			})

			Convey("And the key is unknown", func() {
				d.Unrecord(ctx, "zzz")
				So(d.Size(), ShouldEqual, 3)
			})

			Convey("And every key is removed", func() {
				for _, k := range []string{"c", "a", "b"} {
					d.Unrecord(ctx, k)
				}
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When the bound is reached", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, k := range []string{"a", "b", "c", "d"} {
				d.SeenAndRecord(ctx, k)
			}

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})

			Convey("Then eviction keeps working after removals at the tail", func() {
				d.Unrecord(ctx, "b")
				d.SeenAndRecord(ctx, "e")
				d.SeenAndRecord(ctx, "f")
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := range 1000 {
				d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
				d.Unrecord(ctx, "k-0")
				So(d.Size(), ShouldEqual, 999)
			})
		})

		Convey("When many goroutines race on the same keys", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(100))
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 50 {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key is new exactly once", func() {
				So(fresh, ShouldEqual, 50)
				So(d.Size(), ShouldEqual, 50)
			})
		})
	})
}
