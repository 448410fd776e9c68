// Package testutil provides shared test doubles: a deterministic clock and
// a scriptable media-tool adapter.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mescon/Scanarr/internal/clock"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/tool"
)

// MockClock implements clock.Clock with manually advanced time.
type MockClock struct {
	mu           sync.Mutex
	now          time.Time
	pendingFuncs []pendingFunc
}

type pendingFunc struct {
	executeAt time.Time
	fn        func()
	stopped   bool
}

var _ clock.Clock = (*MockClock)(nil)

// NewMockClock starts at the wall-clock time.
func NewMockClock() *MockClock {
	return &MockClock{now: time.Now()}
}

// NewMockClockAt starts at t.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow moves the clock without firing pending callbacks.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc registers f to fire once Advance passes d.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingFuncs = append(m.pendingFuncs, pendingFunc{
		executeAt: m.now.Add(d),
		fn:        f,
	})
	return &mockTimer{clock: m, index: len(m.pendingFuncs) - 1}
}

// Advance moves the clock forward and fires due callbacks synchronously.
// It returns the number of callbacks fired.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []func()
	for i := range m.pendingFuncs {
		p := &m.pendingFuncs[i]
		if !p.stopped && p.fn != nil && !p.executeAt.After(m.now) {
			due = append(due, p.fn)
			p.fn = nil
		}
	}
	m.mu.Unlock()

	for _, fn := range due {
		fn()
	}
	return len(due)
}

type mockTimer struct {
	clock *MockClock
	index int
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	p := &t.clock.pendingFuncs[t.index]
	if p.stopped || p.fn == nil {
		return false
	}
	p.stopped = true
	return true
}

// FakeAdapter implements tool.Adapter with scripted responses keyed by
// path, so engine tests run without ffmpeg installed.
type FakeAdapter struct {
	mu sync.Mutex

	// Probes maps path to the probe result to return. Paths without an
	// entry get a successful one-video-stream probe.
	Probes map[string]*domain.ProbeResult

	// Reports maps path to the decode report to return. DeepReports, when
	// set for a path, overrides Reports for deep checks.
	Reports     map[string]tool.DecodeReport
	DeepReports map[string]tool.DecodeReport

	// Delay simulates tool latency and makes cancellation windows testable.
	Delay time.Duration

	ProbeCalls  []string
	DecodeCalls []DecodeCall
}

// DecodeCall records one DecodeCheck invocation.
type DecodeCall struct {
	Path  string
	Depth domain.Depth
}

var _ tool.Adapter = (*FakeAdapter)(nil)

// NewFakeAdapter returns an adapter whose every file probes clean and
// decodes silently with exit 0 until scripted otherwise.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Probes:      make(map[string]*domain.ProbeResult),
		Reports:     make(map[string]tool.DecodeReport),
		DeepReports: make(map[string]tool.DecodeReport),
	}
}

func (a *FakeAdapter) Probe(ctx context.Context, path string, _ time.Duration) *domain.ProbeResult {
	a.wait(ctx)
	a.mu.Lock()
	a.ProbeCalls = append(a.ProbeCalls, path)
	scripted, ok := a.Probes[path]
	a.mu.Unlock()
	if ok {
		return scripted
	}
	return &domain.ProbeResult{
		Path:    path,
		Success: true,
		Streams: []domain.Stream{{Index: 0, Type: "video", Codec: "h264"}},
	}
}

func (a *FakeAdapter) DecodeCheck(ctx context.Context, path string, depth domain.Depth, _ time.Duration) tool.DecodeReport {
	a.wait(ctx)
	a.mu.Lock()
	a.DecodeCalls = append(a.DecodeCalls, DecodeCall{Path: path, Depth: depth})
	report, ok := a.Reports[path]
	if depth == domain.DepthDeep {
		if deep, deepOK := a.DeepReports[path]; deepOK {
			report, ok = deep, true
		}
	}
	a.mu.Unlock()
	if ok {
		return report
	}
	return tool.DecodeReport{ExitCode: 0}
}

// CallsFor counts decode invocations for path.
func (a *FakeAdapter) CallsFor(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.DecodeCalls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (a *FakeAdapter) wait(ctx context.Context) {
	if a.Delay <= 0 {
		return
	}
	select {
	case <-time.After(a.Delay):
	case <-ctx.Done():
	}
}
