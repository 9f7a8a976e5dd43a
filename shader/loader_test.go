package shader

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/gogpu/gputypes"
)

const storeSrc = `
@group(0) @binding(0) var output: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    textureStore(output, vec2<i32>(vec2<u32>(id.x, id.y)), vec4<f32>(1.0, 0.0, 0.0, 1.0));
}
`

const vsSrc = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

const fsSrc = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

func TestLoadProgramCompute(t *testing.T) {
	l := NewLoader()
	p, err := l.LoadProgram("store", storeSrc)
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	if len(p.SPIRV) < 5 || p.SPIRV[0] != 0x07230203 {
		t.Fatalf("bad SPIR-V header: %d words", len(p.SPIRV))
	}
	ep, ok := p.Entry("main")
	if !ok {
		t.Fatal("entry point main not found")
	}
	if ep.Stage != gputypes.ShaderStageCompute {
		t.Errorf("Stage = %v, want compute", ep.Stage)
	}
	if ep.Workgroup[0] != 8 || ep.Workgroup[1] != 8 {
		t.Errorf("Workgroup = %v", ep.Workgroup)
	}
}

func TestLoadProgramFragments(t *testing.T) {
	l := NewLoader()
	p, err := l.LoadProgram("fullscreen", vsSrc, fsSrc)
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	if _, ok := p.FirstEntry(gputypes.ShaderStageVertex); !ok {
		t.Error("no vertex entry point")
	}
	if ep, ok := p.FirstEntry(gputypes.ShaderStageFragment); !ok || ep.Name != "fs_main" {
		t.Errorf("fragment entry = %+v, %v", ep, ok)
	}
}

func TestLoadProgramCaches(t *testing.T) {
	l := NewLoader()
	a, err := l.LoadProgram("store", storeSrc)
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	b, _ := l.LoadProgram("store", "ignored on cache hit")
	if a != b {
		t.Error("second load returned a different program")
	}
	hits, misses := l.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses", hits, misses)
	}

	l.Invalidate("store")
	c, err := l.LoadProgram("store", storeSrc)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if c == a || c.ID == a.ID {
		t.Error("Invalidate did not force a recompile")
	}
}

func TestLoadProgramErrors(t *testing.T) {
	l := NewLoader()
	if _, err := l.LoadProgram("empty"); !errors.Is(err, ErrEmptySource) {
		t.Errorf("empty error = %v, want ErrEmptySource", err)
	}
	if _, err := l.LoadProgram("broken", "@vertex\nfn main( {\n"); err == nil {
		t.Error("syntax error accepted")
	}
	// failures are cached
	if _, err := l.LoadProgram("broken"); err == nil {
		t.Error("cached failure lost")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLoadProgramFS(t *testing.T) {
	fsys := fstest.MapFS{
		"vs.wgsl": {Data: []byte(vsSrc)},
		"fs.wgsl": {Data: []byte(fsSrc)},
	}
	l := NewLoader()
	p, err := l.LoadProgramFS(fsys, "fs-program", "vs.wgsl", "fs.wgsl")
	if err != nil {
		t.Fatalf("LoadProgramFS() error = %v", err)
	}
	if len(p.EntryPoints) != 2 {
		t.Errorf("EntryPoints = %v", p.EntryPoints)
	}
	if _, err := l.LoadProgramFS(fsys, "missing", "nope.wgsl"); err == nil {
		t.Error("missing file accepted")
	}
}
