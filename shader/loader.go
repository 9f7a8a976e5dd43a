package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Loader errors.
var (
	// ErrEmptySource is returned when a program has no source fragments.
	ErrEmptySource = errors.New("shader: empty source")

	// ErrNoEntryPoint is returned when the compiled module declares no entry points.
	ErrNoEntryPoint = errors.New("shader: no entry point")

	// ErrValidation is returned when the IR fails validation.
	ErrValidation = errors.New("shader: validation failed")
)

// EntryPoint is one shader entry point of a program.
type EntryPoint struct {
	Name      string
	Stage     gputypes.ShaderStages
	Workgroup [3]uint32
}

// Program is a compiled shader program.
type Program struct {
	ID          gpucore.ProgramID
	Name        string
	Source      string
	SPIRV       []uint32
	EntryPoints []EntryPoint
}

// Entry returns the entry point named name.
func (p *Program) Entry(name string) (EntryPoint, bool) {
	for _, ep := range p.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// FirstEntry returns the first entry point of the given stage.
func (p *Program) FirstEntry(stage gputypes.ShaderStages) (EntryPoint, bool) {
	for _, ep := range p.EntryPoints {
		if ep.Stage == stage {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

type cached struct {
	prog *Program
	err  error
}

// Loader compiles and caches programs by name. Loader is safe for
// concurrent use.
type Loader struct {
	mu       sync.Mutex
	programs map[string]cached
	nextID   gpucore.ProgramID
	validate bool

	hits, misses uint64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithValidation toggles IR validation before SPIR-V generation.
// Validation is off by default.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) { l.validate = enabled }
}

// NewLoader creates an empty loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		programs: make(map[string]cached),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadProgram returns the program cached under name, compiling the
// concatenated fragments on first request. Compile failures are cached
// too; call Invalidate to retry.
func (l *Loader) LoadProgram(name string, fragments ...string) (*Program, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.programs[name]; ok {
		l.hits++
		return c.prog, c.err
	}
	l.misses++

	prog, err := l.compile(name, strings.Join(fragments, "\n"))
	l.programs[name] = cached{prog: prog, err: err}
	return prog, err
}

// LoadProgramFS reads the fragments from fsys (typically an embed.FS)
// and loads them as one program.
func (l *Loader) LoadProgramFS(fsys fs.FS, name string, paths ...string) (*Program, error) {
	fragments := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("shader %q: read %s: %w", name, p, err)
		}
		fragments = append(fragments, string(data))
	}
	return l.LoadProgram(name, fragments...)
}

// Invalidate drops the cached result for name.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.programs, name)
}

// Len returns the number of cached programs, failed ones included.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.programs)
}

// Stats returns cache hits and misses.
func (l *Loader) Stats() (hits, misses uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits, l.misses
}

func (l *Loader) compile(name, src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("shader %q: %w", name, ErrEmptySource)
	}

	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("shader %q: lower: %w", name, err)
	}
	if len(module.EntryPoints) == 0 {
		return nil, fmt.Errorf("shader %q: %w", name, ErrNoEntryPoint)
	}

	if l.validate {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, fmt.Errorf("shader %q: validate: %w", name, err)
		}
		if len(verrs) > 0 {
			return nil, fmt.Errorf("shader %q: %w: %s", name, ErrValidation, verrs[0].Message)
		}
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", name, err)
	}

	l.nextID++
	prog := &Program{
		ID:     l.nextID,
		Name:   name,
		Source: src,
		SPIRV:  bytesToWords(code),
	}
	for _, ep := range module.EntryPoints {
		prog.EntryPoints = append(prog.EntryPoints, EntryPoint{
			Name:      ep.Name,
			Stage:     stageOf(ep.Stage),
			Workgroup: ep.Workgroup,
		})
	}
	return prog, nil
}

func stageOf(s ir.ShaderStage) gputypes.ShaderStages {
	switch s {
	case ir.StageVertex:
		return gputypes.ShaderStageVertex
	case ir.StageFragment:
		return gputypes.ShaderStageFragment
	case ir.StageCompute:
		return gputypes.ShaderStageCompute
	}
	return 0
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
