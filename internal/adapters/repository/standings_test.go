package repository

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
)

func ids(entries []IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ContestantID
	}
	return out
}

// position returns the 1-based place of id in the index, or 0.
func position(idx *StandingsIndex, id string) int {
	for i, e := range idx.All() {
		if e.ContestantID == id {
			return i + 1
		}
	}
	return 0
}

func TestStandingsIndex_BasicOperations(t *testing.T) {
	idx := NewStandingsIndex()

	if n := idx.Len(); n != 0 {
		t.Fatalf("expected empty index, got %d", n)
	}
	if position(idx, "nobody") != 0 {
		t.Fatal("expected unknown contestant to have no position")
	}

	if !idx.Upsert(IndexEntry{ContestantID: "a", Seq: 1, Total: 25.9}) {
		t.Fatal("expected first upsert to change the index")
	}
	if p := position(idx, "a"); p != 1 {
		t.Fatalf("expected position 1, got %d", p)
	}

	if idx.Upsert(IndexEntry{ContestantID: "a", Seq: 1, Total: 25.9}) {
		t.Error("expected identical upsert to be a no-op")
	}

	all := idx.All()
	if len(all) != 1 || all[0].Total != 25.9 || idx.Len() != 1 {
		t.Errorf("unexpected entries: %+v", all)
	}
}

func TestStandingsIndex_Ordering(t *testing.T) {
	idx := NewStandingsIndex()
	idx.Upsert(IndexEntry{ContestantID: "late-tie", Seq: 5, Total: 40})
	idx.Upsert(IndexEntry{ContestantID: "low", Seq: 1, Total: 10})
	idx.Upsert(IndexEntry{ContestantID: "early-tie", Seq: 2, Total: 40})
	idx.Upsert(IndexEntry{ContestantID: "zero", Seq: 3, Total: 0})
	idx.Upsert(IndexEntry{ContestantID: "best", Seq: 4, Total: 90})

	got := ids(idx.All())
	want := []string{"best", "early-tie", "late-tie", "low", "zero"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStandingsIndex_MoveAndRemove(t *testing.T) {
	idx := NewStandingsIndex()
	for i := range 5 {
		idx.Upsert(IndexEntry{ContestantID: fmt.Sprintf("c%d", i), Seq: int64(i), Total: float64(10 * i)})
	}

	// c0 jumps from last to first.
	idx.Upsert(IndexEntry{ContestantID: "c0", Seq: 0, Total: 99})
	if p := position(idx, "c0"); p != 1 {
		t.Errorf("expected c0 to lead, got position %d", p)
	}
	if p := position(idx, "c4"); p != 2 {
		t.Errorf("expected c4 second, got position %d", p)
	}
	if idx.Len() != 5 {
		t.Errorf("expected 5 entries after move, got %d", idx.Len())
	}

	if !idx.Remove("c4") {
		t.Fatal("expected c4 to be removed")
	}
	if idx.Remove("c4") {
		t.Error("expected second removal to report absence")
	}
	if p := position(idx, "c3"); p != 2 {
		t.Errorf("expected c3 second after removal, got %d", p)
	}
}

func TestStandingsIndex_Reset(t *testing.T) {
	idx := NewStandingsIndex()
	idx.Upsert(IndexEntry{ContestantID: "stale", Seq: 1, Total: 50})

	idx.Reset([]IndexEntry{
		{ContestantID: "b", Seq: 2, Total: 5},
		{ContestantID: "a", Seq: 1, Total: 5},
	})
	got := ids(idx.All())
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected order after reset: %v", got)
	}
	if position(idx, "stale") != 0 {
		t.Error("expected stale entry to be gone")
	}
}

func TestStandingsIndex_FixedPointTies(t *testing.T) {
	idx := NewStandingsIndex()
	// 0.1+0.2 and 0.3 differ in float64 but are the same composite.
	idx.Upsert(IndexEntry{ContestantID: "second", Seq: 2, Total: 0.1 + 0.2})
	idx.Upsert(IndexEntry{ContestantID: "first", Seq: 1, Total: 0.3})
	got := ids(idx.All())
	if got[0] != "first" {
		t.Errorf("expected registration order on equal totals, got %v", got)
	}
	if toFixedPoint(math.NaN()) != 0 {
		t.Error("expected NaN to map to zero")
	}
}

func TestStandingsIndex_OrderMatchesSort(t *testing.T) {
	idx := NewStandingsIndex()
	entries := make(map[string]IndexEntry)
	r := rand.New(rand.NewPCG(1, 2))
	for i := range 2000 {
		id := fmt.Sprintf("c%04d", r.IntN(500))
		e := IndexEntry{ContestantID: id, Seq: int64(len(id)) + int64(i%7), Total: float64(r.IntN(40))}
		if old, ok := entries[id]; ok {
			e.Seq = old.Seq
		}
		entries[id] = e
		idx.Upsert(e)
	}

	want := make([]IndexEntry, 0, len(entries))
	for _, e := range entries {
		want = append(want, e)
	}
	sort.Slice(want, func(i, j int) bool {
		a := key{total: toFixedPoint(want[i].Total), seq: want[i].Seq, id: want[i].ContestantID}
		b := key{total: toFixedPoint(want[j].Total), seq: want[j].Seq, id: want[j].ContestantID}
		return a.before(b)
	})

	if idx.Len() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), idx.Len())
	}
	got := ids(idx.All())
	for i, e := range want {
		if got[i] != e.ContestantID {
			t.Fatalf("position %d: expected %s, got %s", i+1, e.ContestantID, got[i])
		}
	}
}

func TestStandingsIndex_ConcurrentAccess(t *testing.T) {
	idx := NewStandingsIndex()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				id := fmt.Sprintf("w%d-%d", w, i%20)
				idx.Upsert(IndexEntry{ContestantID: id, Seq: int64(i % 20), Total: float64(i)})
				_ = idx.All()
			}
		}()
	}
	wg.Wait()
	if idx.Len() != 8*20 {
		t.Errorf("expected %d entries, got %d", 8*20, idx.Len())
	}
}

func BenchmarkStandingsIndex_Upsert(b *testing.B) {
	idx := NewStandingsIndex()
	for i := range 10_000 {
		idx.Upsert(IndexEntry{ContestantID: fmt.Sprintf("c%d", i), Seq: int64(i), Total: float64(i % 100)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := i % 10_000
		idx.Upsert(IndexEntry{ContestantID: fmt.Sprintf("c%d", n), Seq: int64(n), Total: float64(i % 97)})
	}
}

func BenchmarkStandingsIndex_All(b *testing.B) {
	idx := NewStandingsIndex()
	for i := range 10_000 {
		idx.Upsert(IndexEntry{ContestantID: fmt.Sprintf("c%d", i), Seq: int64(i), Total: float64(i % 100)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.All()
	}
}
