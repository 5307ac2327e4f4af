package monitor

import (
	"sort"
	"strings"
	"sync"
	"time"

	"proctop/internal/config"
	"proctop/internal/models"
	"proctop/internal/snapshot"
)

// QueryOptions is what the rendering layer asks for once per tick.
type QueryOptions struct {
	SortBy  models.SortKey
	Reverse bool
	Visible models.VisibleRange
	Search  string
}

// Manager owns the process cache, the refresh scheduler and the memoized
// sorted view. One mutex covers refresh plus resort as a single critical
// section: a partial refresh mutates records the previous view points at.
type Manager struct {
	mu    sync.Mutex
	cache *cache
	clock *refreshClock

	newWindow     time.Duration
	visibleBuffer int
	killTimeout   time.Duration

	view        []int32
	viewValid   bool
	lastSort    models.SortKey
	lastReverse bool

	now func() time.Time
}

func NewManager(src snapshot.Source, cfg *config.Config) *Manager {
	return &Manager{
		cache: newCache(src, cfg.NormalizeCPU, cfg.HidePID0,
			cfg.CPUChangeThreshold, cfg.MemoryChangeThresholdMB),
		clock:         newRefreshClock(cfg.FullInterval(), cfg.PartialInterval()),
		newWindow:     cfg.NewProcessHighlight(),
		visibleBuffer: cfg.VisibleBufferRows,
		killTimeout:   cfg.KillTimeout(),
		now:           time.Now,
	}
}

// Len reports how many processes the cache currently holds.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache.records)
}

// Reconfigure applies a freshly loaded config to the running manager. Only
// the tunables that make sense to change live are picked up; the CPU
// normalization flag is fixed for the lifetime of the process.
func (m *Manager) Reconfigure(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.setIntervals(cfg.FullInterval(), cfg.PartialInterval())
	m.newWindow = cfg.NewProcessHighlight()
	m.visibleBuffer = cfg.VisibleBufferRows
	m.killTimeout = cfg.KillTimeout()
	m.cache.cpuThreshold = cfg.CPUChangeThreshold
	m.cache.memThresholdMB = cfg.MemoryChangeThresholdMB
	m.cache.hidePID0 = cfg.HidePID0
}

// ForceRefresh runs a full refresh immediately, bypassing both timers, and
// invalidates the memoized view. Issued after a kill so the table reflects
// reality on the next query.
func (m *Manager) ForceRefresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.force()
	err := m.cache.fullRefresh()
	m.clock.mark(refreshFull)
	m.viewValid = false
	return err
}

// Query runs the time-based refresh check, re-sorts when needed and returns
// the ordered, filtered process records. Returned records are copies; the
// caller can hold them across ticks safely.
func (m *Manager) Query(opts QueryOptions) []models.ProcessRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	refreshed := false
	switch m.clock.due() {
	case refreshFull:
		if err := m.cache.fullRefresh(); err == nil {
			refreshed = true
		}
		m.clock.mark(refreshFull)
	case refreshPartial:
		m.cache.partialRefresh()
		m.clock.mark(refreshPartial)
		refreshed = true
	}

	if refreshed || !m.viewValid || opts.SortBy != m.lastSort || opts.Reverse != m.lastReverse {
		m.view = m.sortedPIDs(opts.SortBy, opts.Reverse)
		m.viewValid = true
		m.lastSort = opts.SortBy
		m.lastReverse = opts.Reverse
	}

	// Filtering happens on the way out and is never memoized, so a search
	// never pollutes the canonical sorted view.
	query := strings.ToLower(strings.TrimSpace(opts.Search))
	now := m.now()
	out := make([]models.ProcessRecord, 0, len(m.view))
	for _, pid := range m.view {
		rec := m.cache.records[pid]
		if rec == nil {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rec.Name), query) {
			continue
		}
		cp := *rec
		birth, tracked := m.cache.births[pid]
		cp.IsNew = tracked && now.Sub(birth) < m.newWindow
		out = append(out, cp)
	}

	m.updateVisible(out, opts.Visible)
	return out
}

// sortedPIDs stable-sorts the cache's enumeration order by the chosen key.
// Equal keys keep their relative cache order in either direction.
func (m *Manager) sortedPIDs(key models.SortKey, reverse bool) []int32 {
	pids := append([]int32(nil), m.cache.order...)
	recs := m.cache.records

	less := func(a, b *models.ProcessRecord) bool {
		switch key {
		case models.SortMemory:
			return a.MemoryMB < b.MemoryMB
		case models.SortPID:
			return a.PID < b.PID
		case models.SortName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		default:
			return a.CPUPercent < b.CPUPercent
		}
	}
	sort.SliceStable(pids, func(i, j int) bool {
		a, b := recs[pids[i]], recs[pids[j]]
		if reverse {
			return less(b, a)
		}
		return less(a, b)
	})
	return pids
}

// updateVisible turns the reported viewport rows (over the just-returned
// view) into the PID set the next partial refresh will prioritize. The range
// is advisory; no range just means nothing gets priority.
func (m *Manager) updateVisible(view []models.ProcessRecord, r models.VisibleRange) {
	if r.IsZero() || len(view) == 0 {
		m.cache.setVisible(nil)
		return
	}
	start := r.Start - m.visibleBuffer
	end := r.End + m.visibleBuffer
	if start < 0 {
		start = 0
	}
	if end > len(view) {
		end = len(view)
	}
	if start >= end {
		m.cache.setVisible(nil)
		return
	}
	pids := make([]int32, 0, end-start)
	for _, rec := range view[start:end] {
		pids = append(pids, rec.PID)
	}
	m.cache.setVisible(pids)
}

// Threads fetches the thread table for one PID, on demand and uncached.
func (m *Manager) Threads(pid int32) ([]models.ThreadRecord, error) {
	threads, err := readThreads(pid)
	if err != nil {
		return nil, snapshot.Normalize(err)
	}
	return threads, nil
}

// ExePath resolves the executable path behind one PID.
func (m *Manager) ExePath(pid int32) (string, error) {
	path, err := readExePath(pid)
	if err != nil {
		return "", snapshot.Normalize(err)
	}
	return path, nil
}
