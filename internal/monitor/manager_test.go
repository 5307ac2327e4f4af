package monitor

import (
	"reflect"
	"testing"
	"time"

	"proctop/internal/models"
)

func TestQuerySortCPUDescending(t *testing.T) {
	src := newFakeSource(1)
	src.set(100, "calm", 20, 0)
	src.set(200, "busy", 90, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	out := m.Query(QueryOptions{SortBy: models.SortCPU, Reverse: true})
	if !samePIDs(pidsOf(out), 200, 100) {
		t.Fatalf("expected [200 100], got %v", pidsOf(out))
	}

	out = m.Query(QueryOptions{SortBy: models.SortCPU})
	if !samePIDs(pidsOf(out), 100, 200) {
		t.Fatalf("expected [100 200], got %v", pidsOf(out))
	}
}

func TestQuerySortByNameCaseInsensitive(t *testing.T) {
	src := newFakeSource(1)
	src.set(10, "Zsh", 1, 0)
	src.set(20, "bash", 1, 0)
	src.set(30, "Chrome", 1, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	out := m.Query(QueryOptions{SortBy: models.SortName})
	if !samePIDs(pidsOf(out), 20, 30, 10) {
		t.Fatalf("expected bash, Chrome, Zsh order, got %v", pidsOf(out))
	}
}

func TestStableSortKeepsCacheOrderOnTies(t *testing.T) {
	src := newFakeSource(1)
	// Identical CPU; enumeration order is the only ordering source.
	src.set(300, "a", 50, 0)
	src.set(100, "b", 50, 0)
	src.set(200, "c", 50, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	out := m.Query(QueryOptions{SortBy: models.SortCPU, Reverse: true})
	if !samePIDs(pidsOf(out), 300, 100, 200) {
		t.Fatalf("ties must keep cache iteration order, got %v", pidsOf(out))
	}

	out = m.Query(QueryOptions{SortBy: models.SortCPU})
	if !samePIDs(pidsOf(out), 300, 100, 200) {
		t.Fatalf("ties must keep cache order in either direction, got %v", pidsOf(out))
	}
}

func TestSearchFilterCaseInsensitive(t *testing.T) {
	src := newFakeSource(1)
	src.set(1, "chrome", 10, 0)
	src.set(2, "explorer", 20, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	out := m.Query(QueryOptions{SortBy: models.SortCPU, Search: "chr"})
	if len(out) != 1 || out[0].Name != "chrome" {
		t.Fatalf(`search "chr" must keep chrome only, got %v`, pidsOf(out))
	}

	out = m.Query(QueryOptions{SortBy: models.SortCPU, Search: "CHR"})
	if len(out) != 1 || out[0].Name != "chrome" {
		t.Fatalf("search must be case-insensitive, got %v", pidsOf(out))
	}

	out = m.Query(QueryOptions{SortBy: models.SortCPU, Search: "   "})
	if len(out) != 2 {
		t.Fatalf("whitespace-only query means no filtering, got %v", pidsOf(out))
	}
}

func TestRepeatedQueryIsIdempotent(t *testing.T) {
	src := newFakeSource(1)
	src.set(1, "chrome", 10, 0)
	src.set(2, "cherry", 20, 0)
	src.set(3, "explorer", 30, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	opts := QueryOptions{SortBy: models.SortCPU, Reverse: true, Search: "ch"}
	first := m.Query(opts)
	second := m.Query(opts)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same query with no elapsed interval must return identical output:\n%v\n%v", first, second)
	}
}

func TestSearchDoesNotPolluteMemoizedView(t *testing.T) {
	src := newFakeSource(1)
	src.set(1, "chrome", 10, 0)
	src.set(2, "explorer", 20, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	m.Query(QueryOptions{SortBy: models.SortCPU, Search: "chr"})
	if len(m.view) != 2 {
		t.Fatalf("memoized view must stay unfiltered, got %d entries", len(m.view))
	}

	out := m.Query(QueryOptions{SortBy: models.SortCPU})
	if len(out) != 2 {
		t.Fatalf("clearing the search must restore the full view, got %v", pidsOf(out))
	}
}

func TestForcedRefreshInvalidatesMemoizedView(t *testing.T) {
	src := newFakeSource(1)
	src.set(100, "a", 20, 0)
	src.set(200, "b", 90, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	opts := QueryOptions{SortBy: models.SortCPU, Reverse: true}
	if out := m.Query(opts); !samePIDs(pidsOf(out), 200, 100) {
		t.Fatalf("setup query wrong: %v", pidsOf(out))
	}

	// Flip the CPU ordering. No interval has elapsed, so a plain query
	// keeps serving the memoized view.
	src.set(100, "a", 95, 0)
	if out := m.Query(opts); !samePIDs(pidsOf(out), 200, 100) {
		t.Fatalf("no refresh was due, view should be unchanged: %v", pidsOf(out))
	}

	if err := m.ForceRefresh(); err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if out := m.Query(opts); !samePIDs(pidsOf(out), 100, 200) {
		t.Fatalf("query after ForceRefresh must re-sort, got %v", pidsOf(out))
	}
}

func TestIsNewFlipsWithoutRefresh(t *testing.T) {
	src := newFakeSource(1)
	src.set(100, "young", 10, 0)
	clk := newFakeClock()

	cfg := testConfig()
	// Keep both refresh tiers out of the way so only the query-time
	// recomputation can flip the flag.
	cfg.FullRefreshInterval = 3600
	cfg.PartialRefreshInterval = 3600
	m := newTestManager(src, cfg, clk)

	out := m.Query(QueryOptions{SortBy: models.SortPID})
	if len(out) != 1 || !out[0].IsNew {
		t.Fatalf("freshly seen process must be new: %+v", out)
	}

	clk.advance(cfg.NewProcessHighlight() + time.Second)
	out = m.Query(QueryOptions{SortBy: models.SortPID})
	if len(out) != 1 || out[0].IsNew {
		t.Fatalf("highlight window elapsed, IsNew must flip without a refresh: %+v", out)
	}
}

func TestQueryTriggersPartialThenFull(t *testing.T) {
	src := newFakeSource(1)
	src.set(100, "steady", 10, 0)
	clk := newFakeClock()
	cfg := testConfig()
	m := newTestManager(src, cfg, clk)

	m.Query(QueryOptions{SortBy: models.SortPID})
	src.set(999, "latecomer", 5, 0)
	src.set(100, "steady", 40, 0)

	// Partial interval elapsed: CPU updates, no enumeration.
	clk.advance(cfg.PartialInterval())
	out := m.Query(QueryOptions{SortBy: models.SortPID})
	if !samePIDs(pidsOf(out), 100) {
		t.Fatalf("partial refresh must not pick up new PIDs: %v", pidsOf(out))
	}
	if out[0].CPUPercent != 40 {
		t.Fatalf("partial refresh should have updated CPU, got %v", out[0].CPUPercent)
	}

	// Full interval elapsed: enumeration runs and finds the latecomer.
	clk.advance(cfg.FullInterval())
	out = m.Query(QueryOptions{SortBy: models.SortPID})
	if !samePIDs(pidsOf(out), 100, 999) {
		t.Fatalf("full refresh must discover new PIDs: %v", pidsOf(out))
	}
}

func TestVisibleRangeFeedsNextPartialRefresh(t *testing.T) {
	src := newFakeSource(1)
	for pid := int32(1); pid <= 40; pid++ {
		src.set(pid, "p", float64(pid), 0)
	}
	clk := newFakeClock()
	cfg := testConfig()
	cfg.VisibleBufferRows = 5
	m := newTestManager(src, cfg, clk)

	m.Query(QueryOptions{
		SortBy:  models.SortPID,
		Visible: models.VisibleRange{Start: 10, End: 20},
	})

	// Rows 10..20 expanded by 5 each side over a PID-sorted view.
	for pid := int32(6); pid <= 25; pid++ {
		if _, ok := m.cache.visible[pid]; !ok {
			t.Fatalf("pid %d should be in the visible set", pid)
		}
	}
	if _, ok := m.cache.visible[5]; ok {
		t.Fatalf("pid 5 is outside the buffered range")
	}
	if _, ok := m.cache.visible[26]; ok {
		t.Fatalf("pid 26 is outside the buffered range")
	}
}

func TestQueryReturnsCopies(t *testing.T) {
	src := newFakeSource(1)
	src.set(100, "a", 10, 0)
	clk := newFakeClock()
	m := newTestManager(src, testConfig(), clk)

	out := m.Query(QueryOptions{SortBy: models.SortPID})
	out[0].Name = "mutated"

	if m.cache.records[100].Name != "a" {
		t.Fatalf("query output must not alias cache records")
	}
}
