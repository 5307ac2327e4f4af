package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"proctop/internal/models"
	"proctop/internal/snapshot"
)

// procHandle is the slice of process-control surface the lifecycle ops need.
// gopsutil backs it in production; tests swap openProcess for fakes.
type procHandle interface {
	ChildPIDs() ([]int32, error)
	Terminate() error
	ForceKill() error
	Running() (bool, error)
	ThreadTable() ([]models.ThreadRecord, error)
	ExePath() (string, error)
}

var (
	openProcess      = openGopsutil
	killPollInterval = 100 * time.Millisecond
)

type gopsHandle struct {
	p *process.Process
}

func openGopsutil(pid int32) (procHandle, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &gopsHandle{p: p}, nil
}

func (h *gopsHandle) ChildPIDs() ([]int32, error) {
	children, err := h.p.Children()
	if err != nil {
		return nil, err
	}
	pids := make([]int32, 0, len(children))
	for _, c := range children {
		pids = append(pids, c.Pid)
	}
	return pids, nil
}

func (h *gopsHandle) Terminate() error { return h.p.Terminate() }
func (h *gopsHandle) ForceKill() error { return h.p.Kill() }

func (h *gopsHandle) Running() (bool, error) { return h.p.IsRunning() }

func (h *gopsHandle) ThreadTable() ([]models.ThreadRecord, error) {
	stats, err := h.p.Threads()
	if err != nil {
		return nil, err
	}
	threads := make([]models.ThreadRecord, 0, len(stats))
	for tid, ts := range stats {
		threads = append(threads, models.ThreadRecord{
			ThreadID:   tid,
			UserTime:   ts.User,
			SystemTime: ts.System,
		})
	}
	return threads, nil
}

func (h *gopsHandle) ExePath() (string, error) { return h.p.Exe() }

func readThreads(pid int32) ([]models.ThreadRecord, error) {
	h, err := openProcess(pid)
	if err != nil {
		return nil, err
	}
	threads, err := h.ThreadTable()
	if err != nil {
		return nil, err
	}
	// Map iteration order from the OS layer is random; present thread IDs
	// in ascending order.
	sort.Slice(threads, func(i, j int) bool { return threads[i].ThreadID < threads[j].ThreadID })
	return threads, nil
}

func readExePath(pid int32) (string, error) {
	h, err := openProcess(pid)
	if err != nil {
		return "", err
	}
	return h.ExePath()
}

// Kill terminates a process, optionally with its whole descendant tree.
// Graceful stop first; whatever still runs when the timeout expires gets
// force-killed. There is no atomicity across the tree: already-dead targets
// stay dead, and any force-kill failures come back in the error.
func (m *Manager) Kill(ctx context.Context, pid int32, includeChildren bool) error {
	root, err := openProcess(pid)
	if err != nil {
		return snapshot.Normalize(err)
	}

	targets := map[int32]procHandle{pid: root}
	if includeChildren {
		// Collect the descendant set before signalling anyone, while the
		// parent can still be asked for its children.
		queue := []procHandle{root}
		for len(queue) > 0 {
			h := queue[0]
			queue = queue[1:]
			children, err := h.ChildPIDs()
			if err != nil {
				continue
			}
			for _, cpid := range children {
				if _, seen := targets[cpid]; seen {
					continue
				}
				ch, err := openProcess(cpid)
				if err != nil {
					continue
				}
				targets[cpid] = ch
				queue = append(queue, ch)
			}
		}
	}

	if err := root.Terminate(); err != nil {
		if cls := snapshot.Classify(err); cls == snapshot.ClassAccessDenied {
			return snapshot.ErrAccessDenied
		} else if cls == snapshot.ClassNotFound {
			return snapshot.ErrNotFound
		}
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	for tpid, h := range targets {
		if tpid == pid {
			continue
		}
		// Children that already exited or can't be signalled don't fail
		// the whole operation.
		_ = h.Terminate()
	}

	if err := waitForExit(ctx, targets, m.killWindow()); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	// Graceful window expired: escalate. What is finally reported is the
	// outcome of the force-kill, not of the original attempt.
	var failed []string
	for tpid, h := range targets {
		alive, _ := h.Running()
		if !alive {
			continue
		}
		if err := h.ForceKill(); err != nil && snapshot.Classify(err) != snapshot.ClassNotFound {
			failed = append(failed, fmt.Sprintf("pid %d: %v", tpid, snapshot.Normalize(err)))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("force kill after timeout: %s", strings.Join(failed, "; "))
	}
	return nil
}

// killWindow reads the graceful-wait budget without racing Reconfigure.
func (m *Manager) killWindow() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killTimeout
}

// waitForExit polls until every target is gone, the timeout expires, or the
// context is cancelled. Polling keeps the caller responsive to a global
// abort instead of parking in an OS wait.
func waitForExit(ctx context.Context, targets map[int32]procHandle, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(killPollInterval)
	defer tick.Stop()

	for {
		allGone := true
		for _, h := range targets {
			if alive, _ := h.Running(); alive {
				allGone = false
				break
			}
		}
		if allGone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("graceful wait expired after %s", timeout)
		case <-tick.C:
		}
	}
}
