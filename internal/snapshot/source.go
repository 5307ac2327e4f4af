package snapshot

import (
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// sysSource reads processes through gopsutil. It keeps one process handle per
// PID because gopsutil stores the previous CPU reading on the handle; that
// handle table is the hidden accumulator behind the differential CPUPercent.
// The mutex makes Sample safe under the refresh pass's parallel fan-out.
type sysSource struct {
	mu      sync.Mutex
	handles map[int32]*process.Process
	cores   int
}

func NewSource() Source {
	cores, err := cpu.Counts(true)
	if err != nil || cores < 1 {
		cores = 1
	}
	return &sysSource{
		handles: make(map[int32]*process.Process),
		cores:   cores,
	}
}

func (s *sysSource) CoreCount() int { return s.cores }

func (s *sysSource) PIDs() ([]int32, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, Normalize(err)
	}
	return pids, nil
}

func (s *sysSource) handle(pid int32) (*process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.handles[pid]
	if !ok {
		var err error
		p, err = process.NewProcess(pid)
		if err != nil {
			return nil, Normalize(err)
		}
		s.handles[pid] = p
	}
	return p, nil
}

func (s *sysSource) Sample(pid int32) (Sample, error) {
	p, err := s.handle(pid)
	if err != nil {
		return Sample{}, err
	}

	// Percent(0) is the differential read: 0 on the first call for a PID,
	// the real rate on later calls. A dead process surfaces here.
	pct, err := p.Percent(0)
	if cls := Classify(err); cls == ClassNotFound || cls == ClassAccessDenied {
		if cls == ClassNotFound {
			s.Forget(pid)
		}
		return Sample{}, Normalize(err)
	}

	out := Sample{Name: "N/A", CPUPercent: pct, Status: "unknown"}

	if name, err := p.Name(); err == nil && name != "" {
		out.Name = name
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		out.MemoryRSS = mi.RSS
	}
	if st, err := p.Status(); err == nil && len(st) > 0 {
		out.Status = strings.Join(st, "")
	}
	return out, nil
}

func (s *sysSource) Forget(pid int32) {
	s.mu.Lock()
	delete(s.handles, pid)
	s.mu.Unlock()
}
