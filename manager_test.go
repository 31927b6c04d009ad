/*
@Author: Lzww
@LastEditTime: 2025-10-17 21:02:40
@Description: Unit tests for the wave limiter manager
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestManager(t *testing.T, kernel Kernel, simdPerSH uint, cfg *Config) *Manager {
	t.Helper()
	m, err := NewManager(kernel, simdPerSH, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerErrors(t *testing.T) {
	if _, err := NewManager(nil, 4, testConfig()); errors.Cause(err) != errNilKernel {
		t.Errorf("nil kernel: got %v", err)
	}

	cfg := testConfig()
	cfg.MaxWave = 0
	if _, err := NewManager(&testKernel{name: "k"}, 4, cfg); errors.Cause(err) != ErrInvalidConfig {
		t.Errorf("invalid config: got %v", err)
	}

	m, err := NewManager(&testKernel{name: "k"}, 4, nil)
	if err != nil {
		t.Fatalf("nil config should use the defaults: %v", err)
	}
	if m.Name() != "k" || m.SIMDPerSH() != 4 {
		t.Errorf("manager %s/%d", m.Name(), m.SIMDPerSH())
	}
}

// TestDisabledByDefault 测试未启用时不创建任何设备状态
func TestDisabledByDefault(t *testing.T) {
	cfg := testConfig()
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	dev := &testDevice{id: 1}

	if m.Enabled() {
		t.Fatal("manager enabled before Enable")
	}
	if w := m.WavesPerSH(dev); w != cfg.MaxWave {
		t.Errorf("waves = %d, want %d", w, cfg.MaxWave)
	}
	if w := m.ShaderArrayWaves(dev); w != 0 {
		t.Errorf("shader array waves = %d, want 0", w)
	}
	if m.Len() != 0 {
		t.Errorf("disabled manager created %d limiters", m.Len())
	}
	if _, ok := m.Snapshot(dev); ok {
		t.Error("snapshot of a device without limiter")
	}
}

func TestEnable(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		hint      uint
		simdPerSH uint
		isCiPlus  bool
		enabled   bool
		fixed     uint
	}{
		{"auto ci plus", EnableAuto, 0, 4, true, true, 0},
		{"auto before ci", EnableAuto, 0, 4, false, false, 0},
		{"auto hint", EnableAuto, 3, 4, true, false, 3},
		{"auto hint before ci", EnableAuto, 3, 4, false, false, 3},
		{"auto hint above max", EnableAuto, 99, 4, true, false, 0},
		{"forced on", EnableOn, 0, 4, false, true, 0},
		{"forced on ignores hint", EnableOn, 3, 4, false, true, 0},
		{"forced off", EnableOff, 0, 4, true, false, 0},
		{"no simd", EnableAuto, 0, 0, true, false, 0},
		{"forced on without simd", EnableOn, 0, 0, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Enable = tt.mode
			m := newTestManager(t, &testKernel{name: "k", hint: tt.hint}, tt.simdPerSH, cfg)

			m.Enable(tt.isCiPlus)
			if m.Enabled() != tt.enabled || m.Fixed() != tt.fixed {
				t.Errorf("enabled=%v fixed=%d, want enabled=%v fixed=%d", m.Enabled(), m.Fixed(), tt.enabled, tt.fixed)
			}

			// 重复调用不应改变状态
			m.Enable(tt.isCiPlus)
			if m.Enabled() != tt.enabled || m.Fixed() != tt.fixed {
				t.Errorf("second Enable changed the state: enabled=%v fixed=%d", m.Enabled(), m.Fixed())
			}
		})
	}
}

func TestKernelHintFixesWaves(t *testing.T) {
	cfg := testConfig()
	m := newTestManager(t, &testKernel{name: "k", hint: 3}, 4, cfg)
	m.Enable(true)

	for id := uint64(0); id < 4; id++ {
		dev := &testDevice{id: id}
		if w := m.WavesPerSH(dev); w != 3 {
			t.Errorf("device %d: waves = %d, want 3", id, w)
		}
		if w := m.ShaderArrayWaves(dev); w != 12 {
			t.Errorf("device %d: shader array waves = %d, want 12", id, w)
		}
	}
	if m.Len() != 0 {
		t.Errorf("fixed waves created %d limiters", m.Len())
	}
}

// TestFixedOverride 测试固定 waves 配置覆盖自适应
func TestFixedOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Enable = EnableOn
	cfg.FixedWaves = 5
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	m.Enable(true)

	if m.Enabled() || m.Fixed() != 5 {
		t.Fatalf("enabled=%v fixed=%d", m.Enabled(), m.Fixed())
	}

	devs := []*testDevice{{id: 1}, {id: 2}, {id: 3}}
	for i := 0; i < 500; i++ {
		for _, dev := range devs {
			w := m.WavesPerSH(dev)
			if w != 5 {
				t.Fatalf("device %d: waves = %d, want 5", dev.id, w)
			}
			m.ProfilingCallback(dev).Callback(bowl(2)(w), w)
		}
	}

	if m.Len() != 0 {
		t.Errorf("fixed override created %d limiters", m.Len())
	}
}

// TestCallbackBeforeEnable 测试 Enable 之前获取回调不会锁定设备状态
func TestCallbackBeforeEnable(t *testing.T) {
	cfg := testConfig()
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	dev := &testDevice{id: 1}

	early := m.ProfilingCallback(dev)
	early.Callback(time.Millisecond, cfg.MaxWave)
	if m.Len() != 0 {
		t.Fatalf("callback before Enable created %d limiters", m.Len())
	}
	if n := cfg.Stats.Copy().LimitersCreated; n != 0 {
		t.Fatalf("limiters created = %d, want 0", n)
	}

	m.Enable(true)
	cb := m.ProfilingCallback(dev)
	for i := 0; i < 500; i++ {
		w := m.WavesPerSH(dev)
		cb.Callback(bowl(3)(w), w)
	}

	snap, ok := m.Snapshot(dev)
	if !ok || !snap.Enabled || snap.Executions != 500 {
		t.Fatalf("limiter did not adapt after Enable: %+v", snap)
	}
	if snap.BestWaves != 3 {
		t.Errorf("best waves = %d, want 3", snap.BestWaves)
	}
}

func TestDisabledManagerWithDump(t *testing.T) {
	cfg := testConfig()
	cfg.Dump = true
	cfg.DumpDir = t.TempDir()
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	m.Enable(false)
	dev := &testDevice{id: 1}

	// dumping alone keeps a limiter that records but never adapts
	cb := m.ProfilingCallback(dev)
	for i := 0; i < 50; i++ {
		cb.Callback(bowl(3)(cfg.MaxWave), cfg.MaxWave)
	}
	snap, ok := m.Snapshot(dev)
	if !ok || snap.Enabled || snap.Executions != 0 {
		t.Errorf("dump-only limiter %+v", snap)
	}
	if w := m.WavesPerSH(dev); w != cfg.MaxWave {
		t.Errorf("waves = %d, want %d", w, cfg.MaxWave)
	}

	m.Close()
	if n := cfg.Stats.Copy().DumpRecords; n != 51 {
		t.Errorf("dump records = %d, want 50 samples and a summary", n)
	}
}

func TestSIMDPerSHOverride(t *testing.T) {
	cfg := testConfig()
	cfg.SIMDPerSH = 2
	m := newTestManager(t, &testKernel{name: "k"}, 0, cfg)
	m.Enable(true)

	if !m.Enabled() || m.SIMDPerSH() != 2 {
		t.Fatalf("enabled=%v simdPerSH=%d", m.Enabled(), m.SIMDPerSH())
	}
	if w := m.ShaderArrayWaves(&testDevice{}); w != cfg.MaxWave*2 {
		t.Errorf("shader array waves = %d, want %d", w, cfg.MaxWave*2)
	}
}

func TestSameLimiterPerDevice(t *testing.T) {
	m := newTestManager(t, &testKernel{name: "k"}, 4, testConfig())
	m.Enable(true)

	a, b := &testDevice{id: 1}, &testDevice{id: 2}
	if m.ProfilingCallback(a) != m.ProfilingCallback(a) {
		t.Error("two limiters for the same device")
	}
	if m.ProfilingCallback(a) == m.ProfilingCallback(b) {
		t.Error("devices share a limiter")
	}
	if m.Len() != 2 {
		t.Errorf("limiters = %d, want 2", m.Len())
	}
}

// TestConcurrentLazyCreation 测试多个设备并发首次访问
func TestConcurrentLazyCreation(t *testing.T) {
	const devices = 32

	cfg := testConfig()
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	m.Enable(true)

	devs := make([]*testDevice, devices)
	for i := range devs {
		devs[i] = &testDevice{id: uint64(i)}
	}

	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		mu    sync.Mutex
		seen  = make(map[*testDevice]ProfilingCallback)
	)
	start.Add(1)
	for i := 0; i < 4*devices; i++ {
		dev := devs[i%devices]
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			if w := m.WavesPerSH(dev); w != cfg.MaxWave {
				t.Errorf("device %d: first waves = %d", dev.id, w)
			}
			cb := m.ProfilingCallback(dev)

			mu.Lock()
			defer mu.Unlock()
			if prev, ok := seen[dev]; ok && prev != cb {
				t.Errorf("device %d got two limiters", dev.id)
			}
			seen[dev] = cb
		}()
	}
	start.Done()
	done.Wait()

	if m.Len() != devices {
		t.Errorf("limiters = %d, want %d", m.Len(), devices)
	}
	if n := cfg.Stats.Copy().LimitersCreated; n != devices {
		t.Errorf("limiters created = %d, want %d", n, devices)
	}
}

// TestDevicesAdaptIndependently runs one serialized queue per device, each
// with its own optimum, concurrently against the same manager
func TestDevicesAdaptIndependently(t *testing.T) {
	cfg := testConfig()
	m := newTestManager(t, &testKernel{name: "k"}, 4, cfg)
	m.Enable(true)

	optimal := []uint{2, 5, 8, 3}
	devs := make([]*testDevice, len(optimal))
	var wg sync.WaitGroup
	for i := range optimal {
		devs[i] = &testDevice{id: uint64(i)}
		wg.Add(1)
		go func(dev *testDevice, timing func(uint) time.Duration) {
			defer wg.Done()
			cb := m.ProfilingCallback(dev)
			for n := 0; n < 500; n++ {
				w := m.WavesPerSH(dev)
				cb.Callback(timing(w), w)
			}
		}(devs[i], bowl(optimal[i]))
	}
	wg.Wait()

	for i, dev := range devs {
		snap, ok := m.Snapshot(dev)
		if !ok {
			t.Fatalf("device %d has no limiter", i)
		}
		if snap.BestWaves != optimal[i] {
			t.Errorf("device %d: best waves = %d, want %d", i, snap.BestWaves, optimal[i])
		}
	}
}

func TestCloseWritesTraces(t *testing.T) {
	cfg := testConfig()
	cfg.Dump = true
	cfg.DumpDir = t.TempDir()
	m := newTestManager(t, &testKernel{name: "vector_add"}, 4, cfg)
	m.Enable(true)

	devs := []*testDevice{{id: 1}, {id: 2}}
	for _, dev := range devs {
		cb := m.ProfilingCallback(dev)
		for i := 0; i < 30; i++ {
			w := m.WavesPerSH(dev)
			cb.Callback(bowl(6)(w), w)
		}
	}

	m.Close()

	for seq := range devs {
		name := filepath.Join(cfg.DumpDir, traceFileName("vector_add", uint(seq)))
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("trace %s: %v", name, err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		// 30 samples plus the summary note
		if len(lines) != 31 {
			t.Errorf("trace %s has %d lines, want 31", name, len(lines))
		}
		if !strings.HasSuffix(lines[0], " 8 W") {
			t.Errorf("first trace line %q", lines[0])
		}
		if !strings.HasPrefix(lines[len(lines)-1], "# state ADAPT") {
			t.Errorf("summary line %q", lines[len(lines)-1])
		}
	}

	// after Close the manager answers with the default and drops callbacks
	dev := devs[0]
	if w := m.WavesPerSH(dev); w != cfg.MaxWave {
		t.Errorf("waves after close = %d, want %d", w, cfg.MaxWave)
	}
	m.ProfilingCallback(dev).Callback(time.Millisecond, 8)
	if m.Len() != 0 {
		t.Errorf("limiters after close = %d", m.Len())
	}
}
