/*
@Author: Lzww
@LastEditTime: 2025-10-16 23:10:37
@Description: Wave limiter manager, one per kernel
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kernel is the kernel a manager tunes
type Kernel interface {
	// Name returns the kernel name, used for logs and trace files
	Name() string

	// WavesPerSIMDHint returns the waves per SIMD requested by the kernel
	// metadata, 0 when the kernel has no preference
	WavesPerSIMDHint() uint
}

// Device identifies a virtual device a kernel is dispatched on. It is used
// as a map key, so implementations must be comparable (pointers usually).
type Device interface {
	ID() uint64
}

// Manager creates a wave limiter for each virtual device a kernel runs on
// and owns them until Close
type Manager struct {
	kernel    Kernel // The kernel which owns this object
	simdPerSH uint
	cfg       *Config

	mu       sync.Mutex
	limiters map[Device]Limiter // Maps virtual device to wave limiter
	enabled  bool               // Whether the adaptation is enabled
	dump     bool               // Whether the data dumper is enabled
	fixed    uint               // The fixed waves per SIMD if not zero
	closed   bool

	log   logrus.FieldLogger
	stats *Stats
}

// NewManager creates the manager of kernel. simdPerSH is the SIMD count per
// shader array of the device family; a zero value keeps adaptation off.
// A nil cfg uses DefaultConfig.
func NewManager(kernel Kernel, simdPerSH uint, cfg *Config) (*Manager, error) {
	if kernel == nil {
		return nil, errors.WithStack(errNilKernel)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SIMDPerSH != 0 {
		simdPerSH = cfg.SIMDPerSH
	}

	return &Manager{
		kernel:    kernel,
		simdPerSH: simdPerSH,
		cfg:       cfg,
		limiters:  make(map[Device]Limiter),
		dump:      cfg.Dump,
		fixed:     cfg.FixedWaves,
		log:       cfg.logger().WithField("kernel", kernel.Name()),
		stats:     cfg.stats(),
	}, nil
}

// Name returns the kernel name
func (m *Manager) Name() string {
	return m.kernel.Name()
}

// SIMDPerSH returns the SIMD count per shader array
func (m *Manager) SIMDPerSH() uint {
	return m.simdPerSH
}

// Enabled reports whether adaptation is active
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Fixed returns the fixed waves per SIMD, 0 when adaptation decides
func (m *Manager) Fixed() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fixed
}

// Enable decides from the hardware generation and the kernel metadata
// whether the waves per SIMD are adapted. Calling it again with the same
// argument has no further effect.
func (m *Manager) Enable(isCiPlus bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fixed > 0 {
		return
	}

	switch m.cfg.Enable {
	case EnableOn:
		m.enabled = true
	case EnableOff:
		m.enabled = false
	default:
		hint := m.kernel.WavesPerSIMDHint()
		switch {
		case hint == 0:
			m.enabled = isCiPlus
		case hint <= m.cfg.MaxWave:
			m.fixed = hint
		}
	}

	if m.simdPerSH == 0 {
		m.enabled = false
	}

	m.log.WithFields(logrus.Fields{
		"enabled": m.enabled,
		"fixed":   m.fixed,
		"ciPlus":  isCiPlus,
	}).Debug("wave limiter manager configured")
}

// WavesPerSH returns the waves per SIMD for the next dispatch on dev
func (m *Manager) WavesPerSH(dev Device) uint {
	l, waves := m.lookup(dev)
	switch {
	case l != nil:
		return l.WavesPerSH()
	case waves == 0:
		return m.cfg.MaxWave
	default:
		return waves
	}
}

// ShaderArrayWaves returns the waves per shader array for the next dispatch
// on dev, 0 leaves the hardware default in place
func (m *Manager) ShaderArrayWaves(dev Device) uint {
	l, waves := m.lookup(dev)
	if l != nil {
		return l.ShaderArrayWaves()
	}
	return waves * m.simdPerSH
}

// lookup returns the limiter of dev, creating it when adaptation is on.
// Without a limiter it returns the fixed waves per SIMD, or 0 when the
// manager is disabled.
func (m *Manager) lookup(dev Device) (Limiter, uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fixed > 0 {
		return nil, m.fixed
	}
	if !m.enabled || m.closed {
		return nil, 0
	}
	return m.limiterLocked(dev), 0
}

// ProfilingCallback returns the callback receiving execution times of the
// kernel on dev. With neither adaptation nor dumping on, no limiter is
// created and the returned callback drops every execution, so callers
// fetch it again after Enable.
func (m *Manager) ProfilingCallback(dev Device) ProfilingCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || (!m.enabled && !m.dump) {
		return nopCallback{}
	}
	return m.limiterLocked(dev)
}

func (m *Manager) limiterLocked(dev Device) Limiter {
	if l, ok := m.limiters[dev]; ok {
		return l
	}

	l := newLimiter(m.cfg, m.kernel.Name(), uint(len(m.limiters)), m.simdPerSH, m.enabled, m.dump)
	m.limiters[dev] = l
	incr(&m.stats.LimitersCreated)
	m.log.WithField("device", dev.ID()).Debug("wave limiter created")
	return l
}

// Len returns the number of limiters created
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}

// Snapshot returns the state of the limiter of dev, if it exists
func (m *Manager) Snapshot(dev Device) (Snapshot, bool) {
	m.mu.Lock()
	l, ok := m.limiters[dev]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return l.Snapshot(), true
}

// Flush writes the trace of every limiter. No callback may be in flight.
func (m *Manager) Flush() {
	for _, l := range m.snapshotLimiters() {
		l.OutputTrace()
	}
}

// Close flushes the traces and releases every limiter. The manager keeps
// answering WavesPerSH with the default afterwards.
func (m *Manager) Close() {
	m.Flush()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.limiters)
}

func (m *Manager) snapshotLimiters() []Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	limiters := make([]Limiter, 0, len(m.limiters))
	for _, l := range m.limiters {
		limiters = append(limiters, l)
	}
	return limiters
}

// nopCallback drops executions nobody measures
type nopCallback struct{}

func (nopCallback) Callback(time.Duration, uint) {}
