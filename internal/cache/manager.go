package cache

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Sweepable is the subset of Cache the Manager needs, independent of the
// value type.
type Sweepable interface {
	Name() string
	DeleteExpired() int
	Clear()
	Stats() Stats
}

// MemoryProbe reports the process heap usage in bytes.
type MemoryProbe func() uint64

// HeapAlloc reads the live heap size from the Go runtime.
func HeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// Manager owns the periodic expiry sweep across every registered cache.
// When the memory probe exceeds the configured limit the sweep flushes every
// unpinned cache unconditionally.
type Manager struct {
	interval    time.Duration
	memoryLimit uint64
	probe       MemoryProbe
	logger      *slog.Logger

	mu     sync.Mutex
	caches []Sweepable
	pinned map[string]bool
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOptions configures a Manager. A zero MemoryLimit disables the
// memory-pressure flush.
type ManagerOptions struct {
	SweepInterval time.Duration
	MemoryLimit   uint64
	Probe         MemoryProbe
}

func NewManager(opts ManagerOptions, logger *slog.Logger) *Manager {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Probe == nil {
		opts.Probe = HeapAlloc
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		interval:    opts.SweepInterval,
		memoryLimit: opts.MemoryLimit,
		probe:       opts.Probe,
		logger:      logger,
	}
}

// Register adds caches to the sweep set.
func (m *Manager) Register(caches ...Sweepable) {
	m.mu.Lock()
	m.caches = append(m.caches, caches...)
	m.mu.Unlock()
}

// RegisterPinned adds caches that are swept for expiry and reported in
// Stats but never flushed, neither on memory pressure nor by Clear.
func (m *Manager) RegisterPinned(caches ...Sweepable) {
	m.mu.Lock()
	if m.pinned == nil {
		m.pinned = make(map[string]bool)
	}
	for _, c := range caches {
		m.pinned[c.Name()] = true
	}
	m.caches = append(m.caches, caches...)
	m.mu.Unlock()
}

// flushable returns the registered caches that Clear may empty.
func (m *Manager) flushable() []Sweepable {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sweepable, 0, len(m.caches))
	for _, c := range m.caches {
		if !m.pinned[c.Name()] {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) snapshot() []Sweepable {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sweepable, len(m.caches))
	copy(out, m.caches)
	return out
}

// SweepResult describes one sweep pass.
type SweepResult struct {
	Expired int
	Flushed bool
}

// Sweep runs a single pass. Each cache is locked only for its own pass.
func (m *Manager) Sweep() SweepResult {
	caches := m.snapshot()

	if m.memoryLimit > 0 {
		if used := m.probe(); used > m.memoryLimit {
			flushed := m.flushable()
			for _, c := range flushed {
				c.Clear()
			}
			m.logger.Warn("cache flush on memory pressure",
				"heap_bytes", used, "limit_bytes", m.memoryLimit, "caches", len(flushed))
			return SweepResult{Flushed: true}
		}
	}

	var res SweepResult
	for _, c := range caches {
		res.Expired += c.DeleteExpired()
	}
	if res.Expired > 0 {
		m.logger.Debug("cache sweep", "expired", res.Expired)
	}
	return res
}

// Start launches the background sweep. Calling Start twice is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop halts the sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Stats returns a snapshot of every registered cache.
func (m *Manager) Stats() []Stats {
	caches := m.snapshot()
	out := make([]Stats, 0, len(caches))
	for _, c := range caches {
		out = append(out, c.Stats())
	}
	return out
}

// Clear flushes every unpinned cache.
func (m *Manager) Clear() {
	for _, c := range m.flushable() {
		c.Clear()
	}
}
