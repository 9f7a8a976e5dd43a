package native

import (
	"fmt"
	"strings"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pipeline is the native object behind a backend.Pipeline.
type pipeline struct {
	kind     backend.PipelineKind
	module   hal.ShaderModule
	layout   hal.PipelineLayout
	groupKey string
	compute  hal.ComputePipeline
	render   hal.RenderPipeline
	viewport gpucore.Viewport
}

func (p *pipeline) destroy(device hal.Device) {
	if p.compute != nil {
		device.DestroyComputePipeline(p.compute)
	}
	if p.render != nil {
		device.DestroyRenderPipeline(p.render)
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
	}
}

// layoutKey is the cache key of a binding layout.
func layoutKey(layout []backend.BindingLayout) string {
	var sb strings.Builder
	for _, l := range layout {
		fmt.Fprintf(&sb, "%d:%d:%d:%d;", l.Slot, l.Kind, l.Visibility, l.Format)
	}
	return sb.String()
}

// groupLayout returns the cached bind group layout for layout.
func (b *Backend) groupLayout(key string, layout []backend.BindingLayout) (hal.BindGroupLayout, error) {
	return b.layouts.GetOrCreate(key, func() (hal.BindGroupLayout, error) {
		entries := make([]gputypes.BindGroupLayoutEntry, len(layout))
		for i, l := range layout {
			entries[i] = l.Entry()
		}
		bgl, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "layout " + key,
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("native: create bind group layout: %w", err)
		}
		return bgl, nil
	})
}

// prepare creates the shader module and pipeline layout shared by both
// pipeline kinds.
func (b *Backend) prepare(label string, prog *shader.Program, layout []backend.BindingLayout) (*pipeline, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if prog == nil {
		return nil, fmt.Errorf("native: pipeline %q: nil program", label)
	}
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  prog.Name,
		Source: hal.ShaderSource{WGSL: prog.Source, SPIRV: prog.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("native: shader module %q: %w", prog.Name, err)
	}
	p := &pipeline{module: module, groupKey: layoutKey(layout)}

	var groups []hal.BindGroupLayout
	if len(layout) > 0 {
		bgl, err := b.groupLayout(p.groupKey, layout)
		if err != nil {
			p.destroy(b.device)
			return nil, err
		}
		groups = append(groups, bgl)
	}
	p.layout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		p.destroy(b.device)
		return nil, fmt.Errorf("native: pipeline layout %q: %w", label, err)
	}
	return p, nil
}

func entryPoint(prog *shader.Program, name string, stage gputypes.ShaderStages) (string, error) {
	var (
		ep shader.EntryPoint
		ok bool
	)
	if name == "" {
		ep, ok = prog.FirstEntry(stage)
	} else {
		ep, ok = prog.Entry(name)
	}
	if !ok || ep.Stage != stage {
		return "", fmt.Errorf("%w: %q (%v) in %s", ErrMissingEntryPoint, name, stage, prog.Name)
	}
	return ep.Name, nil
}

func (b *Backend) register(label string, kind backend.PipelineKind, layout []backend.BindingLayout, p *pipeline) *backend.Pipeline {
	p.kind = kind
	b.pipelines = append(b.pipelines, p)
	b.log().Debug("native: pipeline created", "label", label, "kind", kind, "bindings", len(layout))
	return backend.NewPipeline(gpucore.PipelineID(b.nextID.Add(1)), label, kind, layout, p)
}

// CreateComputePipeline builds a compute pipeline from a loaded program.
func (b *Backend) CreateComputePipeline(desc backend.ComputePipelineDesc) (*backend.Pipeline, error) {
	if desc.Program == nil {
		return nil, fmt.Errorf("native: pipeline %q: nil program", desc.Label)
	}
	entry, err := entryPoint(desc.Program, desc.EntryPoint, gputypes.ShaderStageCompute)
	if err != nil {
		return nil, err
	}
	p, err := b.prepare(desc.Label, desc.Program, desc.Layout)
	if err != nil {
		return nil, err
	}
	p.compute, err = b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		p.destroy(b.device)
		return nil, fmt.Errorf("native: compute pipeline %q: %w", desc.Label, err)
	}
	return b.register(desc.Label, backend.PipelineCompute, desc.Layout, p), nil
}

// CreateRenderPipeline builds a raster pipeline. A pipeline without color
// formats is depth-only and needs no fragment entry point.
func (b *Backend) CreateRenderPipeline(desc backend.RenderPipelineDesc) (*backend.Pipeline, error) {
	if desc.Program == nil {
		return nil, fmt.Errorf("native: pipeline %q: nil program", desc.Label)
	}
	vs, err := entryPoint(desc.Program, desc.VertexEntry, gputypes.ShaderStageVertex)
	if err != nil {
		return nil, err
	}
	var fs string
	if len(desc.ColorFormats) > 0 {
		if fs, err = entryPoint(desc.Program, desc.FragmentEntry, gputypes.ShaderStageFragment); err != nil {
			return nil, err
		}
	}
	p, err := b.prepare(desc.Label, desc.Program, desc.Layout)
	if err != nil {
		return nil, err
	}
	p.viewport = desc.Raster.Viewport

	hd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{Module: p.module, EntryPoint: vs},
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.Raster.Topology,
			FrontFace: desc.Raster.FrontFace,
			CullMode:  desc.Raster.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  ^uint64(0),
		},
	}
	if fs != "" {
		targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
		for i, f := range desc.ColorFormats {
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				Blend:     desc.Raster.Blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		hd.Fragment = &hal.FragmentState{Module: p.module, EntryPoint: fs, Targets: targets}
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		compare := gputypes.CompareFunctionAlways
		if desc.Raster.DepthTest {
			compare = desc.Raster.DepthCompare
		}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: desc.Raster.DepthWrite,
			DepthCompare:      compare,
		}
	}
	p.render, err = b.device.CreateRenderPipeline(hd)
	if err != nil {
		p.destroy(b.device)
		return nil, fmt.Errorf("native: render pipeline %q: %w", desc.Label, err)
	}
	return b.register(desc.Label, backend.PipelineRender, desc.Layout, p), nil
}

func (b *Backend) pipelineFor(p *backend.Pipeline, kind backend.PipelineKind) (*pipeline, error) {
	if p == nil {
		return nil, fmt.Errorf("native: nil pipeline")
	}
	np, ok := p.Native().(*pipeline)
	if !ok || np == nil {
		return nil, fmt.Errorf("native: pipeline %q was not created by this backend", p.Label)
	}
	if np.kind != kind {
		return nil, fmt.Errorf("%w: %q is %v", ErrWrongPipeline, p.Label, np.kind)
	}
	return np, nil
}

// bindGroup builds the bind group of one dispatch or draw. It is released
// with the frame.
func (b *Backend) bindGroup(p *backend.Pipeline, np *pipeline, bindings []backend.Binding) (hal.BindGroup, error) {
	if len(p.Layout) == 0 {
		if len(bindings) > 0 {
			return nil, fmt.Errorf("%w: %q takes no bindings", ErrBindingMismatch, p.Label)
		}
		return nil, nil
	}
	if len(bindings) != len(p.Layout) {
		return nil, fmt.Errorf("%w: %q wants %d bindings, got %d",
			ErrBindingMismatch, p.Label, len(p.Layout), len(bindings))
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(bindings))
	for _, l := range p.Layout {
		bd, ok := findBinding(bindings, l.Slot)
		if !ok || bd.Kind != l.Kind {
			return nil, fmt.Errorf("%w: %q slot %d wants %v", ErrBindingMismatch, p.Label, l.Slot, l.Kind)
		}
		entry, err := b.groupEntry(bd)
		if err != nil {
			return nil, fmt.Errorf("native: %q slot %d: %w", p.Label, l.Slot, err)
		}
		entries = append(entries, entry)
	}
	bgl, err := b.groupLayout(np.groupKey, p.Layout)
	if err != nil {
		return nil, err
	}
	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.Label,
		Layout:  bgl,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: bind group %q: %w", p.Label, err)
	}
	b.frame.groups = append(b.frame.groups, group)
	return group, nil
}

func findBinding(bindings []backend.Binding, slot uint32) (backend.Binding, bool) {
	for _, bd := range bindings {
		if bd.Slot == slot {
			return bd, true
		}
	}
	return backend.Binding{}, false
}

func (b *Backend) groupEntry(bd backend.Binding) (gputypes.BindGroupEntry, error) {
	e := gputypes.BindGroupEntry{Binding: bd.Slot}
	switch bd.Kind {
	case backend.BindSampledTexture, backend.BindStorageTexture:
		view, err := b.textureView(bd.Texture)
		if err != nil {
			return e, err
		}
		e.Resource = gputypes.TextureViewBinding{TextureView: view.NativeHandle()}
	case backend.BindTexelBuffer:
		if bd.View == nil {
			return e, backend.ErrNilResource
		}
		raw := rawBuffer(bd.View.Buffer)
		if raw == nil {
			return e, backend.ErrNilResource
		}
		e.Resource = gputypes.BufferBinding{Buffer: raw.NativeHandle()}
	default:
		raw := rawBuffer(bd.Buffer)
		if raw == nil {
			return e, backend.ErrNilResource
		}
		e.Resource = gputypes.BufferBinding{Buffer: raw.NativeHandle(), Offset: bd.Offset, Size: bd.Size}
	}
	return e, nil
}
