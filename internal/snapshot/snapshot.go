package snapshot

// Sample is one reading of a single process. CPUPercent is differential: the
// first Sample call for a PID only establishes a baseline and reports 0; the
// next call reports CPU time consumed since the previous call divided by the
// wall clock elapsed between them.
type Sample struct {
	Name       string
	CPUPercent float64
	MemoryRSS  uint64
	Status     string
}

// Source enumerates live processes and reads per-process metrics. Sample
// mutates hidden per-PID accumulator state, so readings for a PID must go
// through one Source for the CPU deltas to mean anything.
type Source interface {
	PIDs() ([]int32, error)
	Sample(pid int32) (Sample, error)
	// Forget drops accumulator state for a PID that left the cache, so a
	// reused PID starts from a fresh baseline.
	Forget(pid int32)
	CoreCount() int
}
