package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"proctop/internal/models"
	"proctop/internal/snapshot"
)

// fakeProc scripts one process for the kill/threads/exe paths.
type fakeProc struct {
	mu          sync.Mutex
	pid         int32
	children    []int32
	ignoreTerm  bool
	termErr     error
	killErr     error
	terminated  bool
	forceKilled bool
	threads     []models.ThreadRecord
	exe         string
}

func (f *fakeProc) ChildPIDs() ([]int32, error) {
	return append([]int32(nil), f.children...), nil
}

func (f *fakeProc) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.termErr != nil {
		return f.termErr
	}
	if !f.ignoreTerm {
		f.terminated = true
	}
	return nil
}

func (f *fakeProc) ForceKill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.killErr != nil {
		return f.killErr
	}
	f.forceKilled = true
	return nil
}

func (f *fakeProc) Running() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.terminated && !f.forceKilled, nil
}

func (f *fakeProc) ThreadTable() ([]models.ThreadRecord, error) {
	return append([]models.ThreadRecord(nil), f.threads...), nil
}

func (f *fakeProc) ExePath() (string, error) { return f.exe, nil }

func installFakeProcs(t *testing.T, procs map[int32]*fakeProc) {
	t.Helper()
	t.Cleanup(func() {
		openProcess = openGopsutil
		killPollInterval = 100 * time.Millisecond
	})
	killPollInterval = time.Millisecond
	openProcess = func(pid int32) (procHandle, error) {
		p, ok := procs[pid]
		if !ok {
			return nil, syscall.ESRCH
		}
		return p, nil
	}
}

func killTestManager() *Manager {
	src := newFakeSource(1)
	cfg := testConfig()
	cfg.KillTimeoutSecs = 0.05
	return newTestManager(src, cfg, newFakeClock())
}

func TestKillWithChildrenGraceful(t *testing.T) {
	parent := &fakeProc{pid: 500, children: []int32{501}}
	child := &fakeProc{pid: 501}
	installFakeProcs(t, map[int32]*fakeProc{500: parent, 501: child})
	m := killTestManager()

	if err := m.Kill(context.Background(), 500, true); err != nil {
		t.Fatalf("expected clean kill, got %v", err)
	}
	if !parent.terminated || !child.terminated {
		t.Fatalf("both parent and child must be terminated: %v %v", parent.terminated, child.terminated)
	}
	if parent.forceKilled || child.forceKilled {
		t.Fatalf("no escalation needed when targets exit in time")
	}
}

func TestKillCollectsNestedDescendants(t *testing.T) {
	parent := &fakeProc{pid: 500, children: []int32{501}}
	child := &fakeProc{pid: 501, children: []int32{502}}
	grandchild := &fakeProc{pid: 502}
	installFakeProcs(t, map[int32]*fakeProc{500: parent, 501: child, 502: grandchild})
	m := killTestManager()

	if err := m.Kill(context.Background(), 500, true); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !grandchild.terminated {
		t.Fatalf("descendant collection must be recursive")
	}
}

func TestKillTimeoutEscalatesToForceKill(t *testing.T) {
	stubborn := &fakeProc{pid: 500, ignoreTerm: true}
	installFakeProcs(t, map[int32]*fakeProc{500: stubborn})
	m := killTestManager()

	if err := m.Kill(context.Background(), 500, true); err != nil {
		t.Fatalf("force-kill succeeded, so the operation did: %v", err)
	}
	if !stubborn.forceKilled {
		t.Fatalf("graceful timeout must escalate to force kill")
	}
}

func TestKillReportsForceKillFailure(t *testing.T) {
	stubborn := &fakeProc{pid: 500, ignoreTerm: true, killErr: syscall.EPERM}
	installFakeProcs(t, map[int32]*fakeProc{500: stubborn})
	m := killTestManager()

	err := m.Kill(context.Background(), 500, false)
	if err == nil {
		t.Fatalf("failed force kill must be reported")
	}
	if !strings.Contains(err.Error(), "pid 500") {
		t.Fatalf("error should name the surviving pid: %v", err)
	}
}

func TestKillPartialFailureDoesNotRollBack(t *testing.T) {
	parent := &fakeProc{pid: 500}
	stubborn := &fakeProc{pid: 501, ignoreTerm: true, killErr: syscall.EPERM}
	installFakeProcs(t, map[int32]*fakeProc{500: parent, 501: stubborn})
	parent.children = []int32{501}
	m := killTestManager()

	err := m.Kill(context.Background(), 500, true)
	if err == nil {
		t.Fatalf("surviving child must surface as an error")
	}
	if !parent.terminated {
		t.Fatalf("already-terminated targets stay terminated")
	}
}

func TestKillNotFound(t *testing.T) {
	installFakeProcs(t, map[int32]*fakeProc{})
	m := killTestManager()

	err := m.Kill(context.Background(), 404, true)
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKillAccessDeniedOnTerminate(t *testing.T) {
	guarded := &fakeProc{pid: 500, termErr: syscall.EPERM}
	installFakeProcs(t, map[int32]*fakeProc{500: guarded})
	m := killTestManager()

	err := m.Kill(context.Background(), 500, false)
	if !errors.Is(err, snapshot.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestKillHonorsContextCancel(t *testing.T) {
	stubborn := &fakeProc{pid: 500, ignoreTerm: true}
	installFakeProcs(t, map[int32]*fakeProc{500: stubborn})

	src := newFakeSource(1)
	cfg := testConfig()
	cfg.KillTimeoutSecs = 60
	m := newTestManager(src, cfg, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := m.Kill(ctx, 500, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("a cancelled context must abort the graceful wait, got %v", err)
	}
}

func TestThreadsSortedByID(t *testing.T) {
	proc := &fakeProc{pid: 42, threads: []models.ThreadRecord{
		{ThreadID: 9, UserTime: 1.5, SystemTime: 0.5},
		{ThreadID: 3, UserTime: 0.1, SystemTime: 0.2},
	}}
	installFakeProcs(t, map[int32]*fakeProc{42: proc})
	m := killTestManager()

	threads, err := m.Threads(42)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].ThreadID != 3 || threads[1].ThreadID != 9 {
		t.Fatalf("threads must come back sorted by ID: %+v", threads)
	}
}

func TestThreadsNotFound(t *testing.T) {
	installFakeProcs(t, map[int32]*fakeProc{})
	m := killTestManager()

	if _, err := m.Threads(404); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExePath(t *testing.T) {
	proc := &fakeProc{pid: 42, exe: "/usr/bin/chrome"}
	installFakeProcs(t, map[int32]*fakeProc{42: proc})
	m := killTestManager()

	path, err := m.ExePath(42)
	if err != nil || path != "/usr/bin/chrome" {
		t.Fatalf("expected exe path, got %q (%v)", path, err)
	}
}
