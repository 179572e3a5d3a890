package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Quota is the per-provider call allowance. MaxCalls of zero means the
// provider is never allowed; a provider without a quota is unmetered.
type Quota struct {
	MaxCalls int
	Window   time.Duration
}

// Limiter decides whether a provider call is currently permitted.
// Check is a pure read; Record is the only mutator and is called once
// per call that actually reached the provider.
type Limiter interface {
	Check(ctx context.Context, provider string) (bool, error)
	Record(ctx context.Context, provider string) error
}

// window tracks call timestamps for one provider. Each provider has its
// own lock so contention on one provider never blocks another.
type window struct {
	mu    sync.Mutex
	quota Quota
	calls []time.Time
}

func (w *window) count(now time.Time) int {
	cutoff := now.Add(-w.quota.Window)
	n := 0
	for _, t := range w.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.quota.Window)
	kept := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.calls = kept
}

// Memory is an in-process sliding-window limiter.
type Memory struct {
	windows map[string]*window
	now     func() time.Time
}

// NewMemory creates a limiter with the given per-provider quotas. The
// window map is fixed at construction, so lookups need no lock.
func NewMemory(quotas map[string]Quota) *Memory {
	windows := make(map[string]*window, len(quotas))
	for name, q := range quotas {
		if q.Window <= 0 {
			q.Window = time.Hour
		}
		windows[name] = &window{quota: q}
	}
	return &Memory{windows: windows, now: time.Now}
}

// Check implements Limiter.
func (m *Memory) Check(_ context.Context, provider string) (bool, error) {
	w, ok := m.windows[provider]
	if !ok {
		return true, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count(m.now()) < w.quota.MaxCalls, nil
}

// Record implements Limiter.
func (m *Memory) Record(_ context.Context, provider string) error {
	w, ok := m.windows[provider]
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := m.now()
	w.prune(now)
	w.calls = append(w.calls, now)
	return nil
}
