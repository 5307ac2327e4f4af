package monitor

import (
	"time"

	"golang.org/x/sync/errgroup"

	"proctop/internal/models"
	"proctop/internal/snapshot"
)

const (
	// baselineWait is the bounded pause between the baseline call and the
	// first real sample for a batch of newly discovered PIDs.
	baselineWait = 10 * time.Millisecond

	maxSampleWorkers = 8

	bytesPerMB = 1024 * 1024
)

// cache is the PID-keyed store of current process state. order preserves the
// enumeration order of the last full refresh; it is the only deterministic
// iteration order available and the stable sort's tie-break depends on it.
type cache struct {
	src     snapshot.Source
	records map[int32]*models.ProcessRecord
	order   []int32
	births  map[int32]time.Time
	visible map[int32]struct{}

	normalizeCPU   bool
	hidePID0       bool
	cpuThreshold   float64
	memThresholdMB float64

	now   func() time.Time
	sleep func(time.Duration)
}

func newCache(src snapshot.Source, normalizeCPU, hidePID0 bool, cpuThreshold, memThresholdMB float64) *cache {
	return &cache{
		src:            src,
		records:        make(map[int32]*models.ProcessRecord),
		births:         make(map[int32]time.Time),
		visible:        make(map[int32]struct{}),
		normalizeCPU:   normalizeCPU,
		hidePID0:       hidePID0,
		cpuThreshold:   cpuThreshold,
		memThresholdMB: memThresholdMB,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

func (c *cache) normalize(raw float64) float64 {
	if !c.normalizeCPU {
		return raw
	}
	cores := c.src.CoreCount()
	if cores < 1 {
		cores = 1
	}
	return raw / float64(cores)
}

type sampleResult struct {
	s   snapshot.Sample
	err error
}

// sampleAll reads every PID in pids, fanning out across a bounded worker
// pool. Results line up index-for-index with pids; the caller applies them
// serially so nobody ever observes a half-updated cache.
func (c *cache) sampleAll(pids []int32) []sampleResult {
	results := make([]sampleResult, len(pids))
	var g errgroup.Group
	g.SetLimit(maxSampleWorkers)
	for i, pid := range pids {
		g.Go(func() error {
			s, err := c.src.Sample(pid)
			results[i] = sampleResult{s: s, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// fullRefresh re-enumerates every live process and rebuilds the cache. PIDs
// that vanished are dropped and their birth-time entries pruned. Per-PID
// errors never abort the pass.
func (c *cache) fullRefresh() error {
	pids, err := c.src.PIDs()
	if err != nil {
		return err
	}
	if c.hidePID0 {
		kept := pids[:0]
		for _, pid := range pids {
			if pid != 0 {
				kept = append(kept, pid)
			}
		}
		pids = kept
	}

	now := c.now()
	next := make(map[int32]*models.ProcessRecord, len(pids))
	nextOrder := make([]int32, 0, len(pids))
	var fresh []int32

	results := c.sampleAll(pids)
	for i, pid := range pids {
		s, err := results[i].s, results[i].err
		prev := c.records[pid]
		if err != nil {
			// A cached process we can no longer read keeps its last
			// known values; a new unreadable PID is skipped outright.
			if prev != nil && snapshot.Classify(err) == snapshot.ClassAccessDenied {
				next[pid] = prev
				nextOrder = append(nextOrder, pid)
			}
			continue
		}
		next[pid] = c.buildRecord(pid, s, prev)
		nextOrder = append(nextOrder, pid)
		if prev == nil {
			c.births[pid] = now
			fresh = append(fresh, pid)
		}
	}

	// Brand-new PIDs only have a CPU baseline so far. One bounded wait for
	// the whole batch, then a second sample turns the defined-as-zero
	// reading into a real rate.
	if len(fresh) > 0 {
		c.sleep(baselineWait)
		second := c.sampleAll(fresh)
		for i, pid := range fresh {
			if second[i].err != nil {
				continue
			}
			next[pid].CPUPercent = c.normalize(second[i].s.CPUPercent)
		}
	}

	for pid := range c.records {
		if _, alive := next[pid]; !alive {
			delete(c.births, pid)
			delete(c.visible, pid)
			c.src.Forget(pid)
		}
	}

	c.records = next
	c.order = nextOrder
	return nil
}

// partialRefresh re-samples already-cached PIDs without enumerating. Visible
// PIDs get the full treatment (CPU, memory, trends); the rest a cheaper
// CPU-only update. Dead PIDs are collected and removed after the pass so the
// iteration never mutates the map underneath itself.
func (c *cache) partialRefresh() {
	var dead []int32

	for _, pid := range c.order {
		rec := c.records[pid]
		if rec == nil {
			continue
		}
		if _, vis := c.visible[pid]; !vis {
			continue
		}
		s, err := c.src.Sample(pid)
		if err != nil {
			if snapshot.Classify(err) == snapshot.ClassNotFound {
				dead = append(dead, pid)
			}
			continue
		}
		c.applyFull(rec, s)
	}

	for _, pid := range c.order {
		rec := c.records[pid]
		if rec == nil {
			continue
		}
		if _, vis := c.visible[pid]; vis {
			continue
		}
		s, err := c.src.Sample(pid)
		if err != nil {
			if snapshot.Classify(err) == snapshot.ClassNotFound {
				dead = append(dead, pid)
			}
			continue
		}
		c.applyCPUOnly(rec, s)
	}

	if len(dead) > 0 {
		c.remove(dead)
	}
}

func (c *cache) buildRecord(pid int32, s snapshot.Sample, prev *models.ProcessRecord) *models.ProcessRecord {
	rec := &models.ProcessRecord{
		PID:        pid,
		Name:       s.Name,
		CPUPercent: c.normalize(s.CPUPercent),
		MemoryMB:   float64(s.MemoryRSS) / bytesPerMB,
		Status:     s.Status,
	}
	if prev != nil {
		rec.PreviousCPU = prev.CPUPercent
		rec.PreviousMemory = prev.MemoryMB
		rec.HasPrevious = true
		rec.CPUTrend = TrendOf(prev.CPUPercent, rec.CPUPercent, c.cpuThreshold)
		rec.MemoryTrend = TrendOf(prev.MemoryMB, rec.MemoryMB, c.memThresholdMB)
	}
	return rec
}

func (c *cache) applyFull(rec *models.ProcessRecord, s snapshot.Sample) {
	rec.PreviousCPU = rec.CPUPercent
	rec.PreviousMemory = rec.MemoryMB
	rec.HasPrevious = true
	rec.CPUPercent = c.normalize(s.CPUPercent)
	rec.MemoryMB = float64(s.MemoryRSS) / bytesPerMB
	rec.Status = s.Status
	rec.CPUTrend = TrendOf(rec.PreviousCPU, rec.CPUPercent, c.cpuThreshold)
	rec.MemoryTrend = TrendOf(rec.PreviousMemory, rec.MemoryMB, c.memThresholdMB)
}

func (c *cache) applyCPUOnly(rec *models.ProcessRecord, s snapshot.Sample) {
	rec.PreviousCPU = rec.CPUPercent
	rec.HasPrevious = true
	rec.CPUPercent = c.normalize(s.CPUPercent)
	rec.CPUTrend = TrendOf(rec.PreviousCPU, rec.CPUPercent, c.cpuThreshold)
}

func (c *cache) remove(pids []int32) {
	gone := make(map[int32]struct{}, len(pids))
	for _, pid := range pids {
		gone[pid] = struct{}{}
		delete(c.records, pid)
		delete(c.births, pid)
		delete(c.visible, pid)
		c.src.Forget(pid)
	}
	kept := c.order[:0]
	for _, pid := range c.order {
		if _, dead := gone[pid]; !dead {
			kept = append(kept, pid)
		}
	}
	c.order = kept
}

// setVisible replaces the advisory visible-PID set used to prioritize the
// next partial refresh.
func (c *cache) setVisible(pids []int32) {
	c.visible = make(map[int32]struct{}, len(pids))
	for _, pid := range pids {
		if _, ok := c.records[pid]; ok {
			c.visible[pid] = struct{}{}
		}
	}
}
