package wgpu

import (
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
)

type pipeline struct {
	kind     backend.PipelineKind
	module   *wgpu.ShaderModule
	group    *wgpu.BindGroupLayout
	layout   *wgpu.PipelineLayout
	compute  *wgpu.ComputePipeline
	render   *wgpu.RenderPipeline
	viewport gpucore.Viewport
}

func (p *pipeline) release() {
	if p.compute != nil {
		p.compute.Release()
	}
	if p.render != nil {
		p.render.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.group != nil {
		p.group.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}

func (b *Backend) prepare(label string, prog *shader.Program, layout []backend.BindingLayout) (*pipeline, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: prog.Name,
		WGSL:  prog.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader module %q: %w", prog.Name, err)
	}
	p := &pipeline{module: module}

	var groups []*wgpu.BindGroupLayout
	if len(layout) > 0 {
		entries := make([]gputypes.BindGroupLayoutEntry, len(layout))
		for i, l := range layout {
			entries[i] = l.Entry()
		}
		p.group, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   label,
			Entries: entries,
		})
		if err != nil {
			p.release()
			return nil, fmt.Errorf("wgpu: bind group layout %q: %w", label, err)
		}
		groups = append(groups, p.group)
	}
	p.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("wgpu: pipeline layout %q: %w", label, err)
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
		return "", fmt.Errorf("wgpu: %s has no %v entry point %q", prog.Name, stage, name)
	}
	return ep.Name, nil
}

func (b *Backend) register(label string, kind backend.PipelineKind, layout []backend.BindingLayout, p *pipeline) *backend.Pipeline {
	p.kind = kind
	b.pipelines = append(b.pipelines, p)
	b.log().Debug("wgpu: pipeline created", "label", label, "kind", kind)
	return backend.NewPipeline(gpucore.PipelineID(b.nextID.Add(1)), label, kind, layout, p)
}

// CreateComputePipeline builds a compute pipeline from the program's WGSL.
func (b *Backend) CreateComputePipeline(desc backend.ComputePipelineDesc) (*backend.Pipeline, error) {
	if desc.Program == nil {
		return nil, fmt.Errorf("wgpu: pipeline %q: nil program", desc.Label)
	}
	entry, err := entryPoint(desc.Program, desc.EntryPoint, gputypes.ShaderStageCompute)
	if err != nil {
		return nil, err
	}
	p, err := b.prepare(desc.Label, desc.Program, desc.Layout)
	if err != nil {
		return nil, err
	}
	p.compute, err = b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      desc.Label,
		Layout:     p.layout,
		Module:     p.module,
		EntryPoint: entry,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("wgpu: compute pipeline %q: %w", desc.Label, err)
	}
	return b.register(desc.Label, backend.PipelineCompute, desc.Layout, p), nil
}

// CreateRenderPipeline builds a raster pipeline.
func (b *Backend) CreateRenderPipeline(desc backend.RenderPipelineDesc) (*backend.Pipeline, error) {
	if desc.Program == nil {
		return nil, fmt.Errorf("wgpu: pipeline %q: nil program", desc.Label)
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

	rd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: wgpu.VertexState{Module: p.module, EntryPoint: vs},
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
			targets[i] = gputypes.ColorTargetState{Format: f, Blend: desc.Raster.Blend, WriteMask: gputypes.ColorWriteMaskAll}
		}
		rd.Fragment = &wgpu.FragmentState{Module: p.module, EntryPoint: fs, Targets: targets}
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		compare := gputypes.CompareFunctionAlways
		if desc.Raster.DepthTest {
			compare = desc.Raster.DepthCompare
		}
		rd.DepthStencil = &wgpu.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: desc.Raster.DepthWrite,
			DepthCompare:      compare,
		}
	}
	p.render, err = b.device.CreateRenderPipeline(rd)
	if err != nil {
		p.release()
		return nil, fmt.Errorf("wgpu: render pipeline %q: %w", desc.Label, err)
	}
	return b.register(desc.Label, backend.PipelineRender, desc.Layout, p), nil
}

func (b *Backend) pipelineFor(p *backend.Pipeline, kind backend.PipelineKind) (*pipeline, error) {
	if p == nil {
		return nil, fmt.Errorf("wgpu: nil pipeline")
	}
	np, ok := p.Native().(*pipeline)
	if !ok || np == nil {
		return nil, fmt.Errorf("wgpu: pipeline %q was not created by this backend", p.Label)
	}
	if np.kind != kind {
		return nil, fmt.Errorf("%w: %q is %v", ErrWrongPipeline, p.Label, np.kind)
	}
	return np, nil
}

// bindGroup rebinds the pass resources for one dispatch or draw.
func (b *Backend) bindGroup(p *backend.Pipeline, np *pipeline, bindings []backend.Binding) (*wgpu.BindGroup, error) {
	if np.group == nil {
		if len(bindings) > 0 {
			return nil, fmt.Errorf("%w: %q takes no bindings", ErrBindingMismatch, p.Label)
		}
		return nil, nil
	}
	if len(bindings) != len(p.Layout) {
		return nil, fmt.Errorf("%w: %q wants %d bindings, got %d",
			ErrBindingMismatch, p.Label, len(p.Layout), len(bindings))
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for _, l := range p.Layout {
		var (
			bd    backend.Binding
			found bool
		)
		for _, c := range bindings {
			if c.Slot == l.Slot {
				bd, found = c, true
				break
			}
		}
		if !found || bd.Kind != l.Kind {
			return nil, fmt.Errorf("%w: %q slot %d wants %v", ErrBindingMismatch, p.Label, l.Slot, l.Kind)
		}
		e := wgpu.BindGroupEntry{Binding: l.Slot}
		switch bd.Kind {
		case backend.BindSampledTexture, backend.BindStorageTexture:
			view, err := b.textureView(bd.Texture)
			if err != nil {
				return nil, err
			}
			e.TextureView = view
		case backend.BindTexelBuffer:
			if bd.View == nil || rawBuffer(bd.View.Buffer) == nil {
				return nil, fmt.Errorf("%w: %q slot %d", backend.ErrNilResource, p.Label, l.Slot)
			}
			e.Buffer = rawBuffer(bd.View.Buffer)
		default:
			if e.Buffer = rawBuffer(bd.Buffer); e.Buffer == nil {
				return nil, fmt.Errorf("%w: %q slot %d", backend.ErrNilResource, p.Label, l.Slot)
			}
			e.Offset, e.Size = bd.Offset, bd.Size
		}
		entries = append(entries, e)
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.Label,
		Layout:  np.group,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: bind group %q: %w", p.Label, err)
	}
	b.frame.groups = append(b.frame.groups, group)
	return group, nil
}
