package framegraph

import (
	"errors"
	"testing"

	"github.com/gogpu/framegraph/internal/pool"
	"github.com/gogpu/framegraph/shader"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.debug {
		t.Error("debug should be off by default")
	}
	if !o.aliasing {
		t.Error("aliasing should be on by default")
	}
	if o.reordering {
		t.Error("reordering should be off by default")
	}
	if !o.clearOnAlloc {
		t.Error("clear-on-alloc should be on by default")
	}
	if o.poolConfig != pool.DefaultConfig() {
		t.Errorf("poolConfig = %+v, want %+v", o.poolConfig, pool.DefaultConfig())
	}
}

func TestOptionsApply(t *testing.T) {
	loader := shader.NewLoader()
	cfg := PoolConfig{MaxMemoryMB: 64, MaxIdleFrames: 2}

	tests := []struct {
		name  string
		opt   Option
		check func(o options) bool
	}{
		{"debug", WithDebug(true), func(o options) bool { return o.debug }},
		{"no aliasing", WithAliasing(false), func(o options) bool { return !o.aliasing }},
		{"reordering", WithReordering(true), func(o options) bool { return o.reordering }},
		{"no clear", WithClearOnAlloc(false), func(o options) bool { return !o.clearOnAlloc }},
		{"pool config", WithPoolConfig(cfg), func(o options) bool { return o.poolConfig == cfg }},
		{"shader loader", WithShaderLoader(loader), func(o options) bool { return o.shaders == loader }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option %s not applied: %+v", tt.name, o)
			}
		})
	}
}

func TestNewWithoutBackend(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("New(nil) = %v, want ErrNoBackend", err)
	}
}

func TestNewSharesShaderLoader(t *testing.T) {
	loader := shader.NewLoader()
	g, err := New(newFakeBackend(), WithShaderLoader(loader))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer g.Close()
	if g.Shaders() != loader {
		t.Error("Shaders() did not return the injected loader")
	}
}

func TestNewCreatesShaderLoader(t *testing.T) {
	g, err := New(newFakeBackend())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	defer g.Close()
	if g.Shaders() == nil {
		t.Error("Shaders() = nil, want a default loader")
	}
}
