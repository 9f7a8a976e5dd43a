// Package framegraph schedules GPU passes against a graph of named
// resources.
//
// # Overview
//
// A frame is described declaratively. Every pass first declares the
// textures and buffers it reads and writes together with the
// synchronization state it needs them in; only then are the passes
// executed. Seeing the whole frame before any GPU command is recorded lets
// the graph:
//   - reuse backing memory across frames through a size/format keyed pool
//   - share one backing between transients whose lifetimes do not overlap
//   - derive every barrier and layout transition from declared states
//   - drop passes whose results nothing consumes
//
// # Quick Start
//
//	be, _ := backend.Open("")
//	g, _ := framegraph.New(be)
//	defer g.Close()
//
//	b, _ := g.BeginFrame()
//	depth := b.AddNode("depth fill")
//	d := depth.AddDepthOutput("depth", &gpucore.TextureDesc{
//	    Width: 512, Height: 512, Format: gputypes.TextureFormatDepth32Float,
//	})
//	depth.SetExecutor(func(ctx context.Context, b *framegraph.Builder) error {
//	    tex, err := b.GetWriteTexture(d)
//	    ...
//	})
//	...
//	_ = b.Compile(out)
//	_ = b.Execute(ctx)
//	_ = b.EndFrame()
//
// # Phases
//
// A [Builder] moves through Declaring, Compiled, Executing, Executed and
// Ended. Declarations ([Builder.ReadTexture], [Builder.WriteTexture] and
// the [Node] helpers) are accepted only while declaring; resolution
// ([Builder.GetReadTexture] and friends) only while a node executes.
//
// # Errors
//
// Declaration errors never abort the frame. They are logged, collected in
// [Builder.Err] and the offending access resolves to a zero [ResourceRef].
// With [WithDebug] they panic instead. Device out-of-memory panics.
//
// # Passes
//
// Long-lived pass objects implement [Pass]. State that is valid only
// between Setup and Execute lives in a per-frame [Scratch]; device objects
// created on first use live in a [Lazy] cell.
package framegraph
