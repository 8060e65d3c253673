package mixer

import (
	"testing"

	"github.com/davdef/airlift-node/internal/pcmframe"
	"github.com/davdef/airlift-node/internal/registry"
	"github.com/davdef/airlift-node/internal/ring"
)

func boolPtr(b bool) *bool { return &b }

func newTestRegistry(t *testing.T, sources map[string]int) (*registry.Registry[*ring.Ring[pcmframe.Frame]], map[string]*ring.Ring[pcmframe.Frame]) {
	t.Helper()
	reg := registry.New[*ring.Ring[pcmframe.Frame]]()
	rings := make(map[string]*ring.Ring[pcmframe.Frame])
	for name, capacity := range sources {
		r := ring.New[pcmframe.Frame](capacity, nil)
		rings[name] = r
		if err := reg.Register(name, r); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	return reg, rings
}

func TestMixerNoOpWhenNoInputsResolvable(t *testing.T) {
	t.Parallel()

	m := New("studio", Config{
		Inputs:      []InputConfig{{Name: "a", Source: "missing", Gain: 1}},
		AutoConnect: true,
	}, nil)
	reg := registry.New[*ring.Ring[pcmframe.Frame]]()
	m.SetRegistry(reg)
	m.ConnectFromRegistry()

	out := ring.New[pcmframe.Frame](8, nil)
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Len(); got != 0 {
		t.Fatalf("expected no-op mix, got %d frames", got)
	}
}

func TestMixerCombinesTwoSourcesWithGain(t *testing.T) {
	t.Parallel()

	reg, rings := newTestRegistry(t, map[string]int{"mic1": 16, "mic2": 16})
	m := New("studio", Config{
		Inputs: []InputConfig{
			{Name: "m1", Source: "mic1", Gain: 1.0},
			{Name: "m2", Source: "mic2", Gain: 0.5},
		},
		OutputSampleRate: 48000,
		OutputChannels:   1,
		MasterGain:       1.0,
		AutoConnect:      true,
	}, nil)
	m.SetRegistry(reg)
	m.ConnectFromRegistry()

	mixedLen := 48000 / 10 // mono
	s1 := make([]int16, mixedLen)
	s2 := make([]int16, mixedLen)
	for i := range s1 {
		s1[i] = 1000
		s2[i] = 2000
	}
	rings["mic1"].Push(pcmframe.Frame{Samples: s1}, 1)
	rings["mic2"].Push(pcmframe.Frame{Samples: s2}, 2)

	out := ring.New[pcmframe.Frame](8, nil)
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap := out.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 mixed frame, got %d", len(snap))
	}
	want := int16(1000 + 2000*0.5) // 2000
	for i, s := range snap[0].Samples {
		if s != want {
			t.Fatalf("sample %d: got %d want %d", i, s, want)
		}
	}
}

func TestMixerAbortsBatchWhenNoInputContributes(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, map[string]int{"mic1": 16})
	m := New("studio", Config{
		Inputs:           []InputConfig{{Name: "m1", Source: "mic1", Gain: 1.0}},
		OutputSampleRate: 48000,
		OutputChannels:   1,
		AutoConnect:      true,
	}, nil)
	m.SetRegistry(reg)
	m.ConnectFromRegistry()

	out := ring.New[pcmframe.Frame](8, nil)
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Len(); got != 0 {
		t.Fatalf("expected no frame pushed when input empty, got %d", got)
	}
}

func TestMixerDisabledInputIsSkipped(t *testing.T) {
	t.Parallel()

	reg, rings := newTestRegistry(t, map[string]int{"mic1": 16})
	m := New("studio", Config{
		Inputs: []InputConfig{
			{Name: "m1", Source: "mic1", Gain: 1.0, Enabled: boolPtr(false)},
		},
		AutoConnect: true,
	}, nil)
	m.SetRegistry(reg)
	m.ConnectFromRegistry()

	rings["mic1"].Push(pcmframe.Frame{Samples: []int16{100}}, 1)
	out := ring.New[pcmframe.Frame](8, nil)
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Len(); got != 0 {
		t.Fatalf("expected disabled input to be skipped, out len=%d", got)
	}
}

func TestUpdateConfigAutoConnectReResolves(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, map[string]int{"mic1": 16, "mic2": 16})
	m := New("studio", Config{
		Inputs:      []InputConfig{{Name: "m1", Source: "mic1", Gain: 1.0}},
		AutoConnect: true,
	}, nil)
	m.SetRegistry(reg)
	m.ConnectFromRegistry()
	if got := m.ExtendedStatus().ConnectedInputs; got != 1 {
		t.Fatalf("expected 1 connected input, got %d", got)
	}

	m.UpdateConfig(Config{
		Inputs:      []InputConfig{{Name: "m2", Source: "mic2", Gain: 1.0}},
		AutoConnect: true,
	})
	if got := m.ExtendedStatus().ConnectedInputs; got != 1 {
		t.Fatalf("expected 1 connected input after reconfigure, got %d", got)
	}
}

func TestUpdateConfigManualClearsConnections(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, map[string]int{"mic1": 16})
	m := New("studio", Config{
		Inputs:      []InputConfig{{Name: "m1", Source: "mic1", Gain: 1.0}},
		AutoConnect: true,
	}, nil)
	m.SetRegistry(reg)
	m.ConnectFromRegistry()

	m.UpdateConfig(Config{AutoConnect: false})
	if got := m.ExtendedStatus().ConnectedInputs; got != 0 {
		t.Fatalf("expected 0 connected inputs after manual reconfigure, got %d", got)
	}
}
