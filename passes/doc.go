// Package passes holds the leaf passes of the demo renderer.
//
// Every pass implements [framegraph.Pass]. Setup declares the pass's
// resources through the [framegraph.Node] helpers and keeps the returned
// refs in the frame's scratch; Execute resolves them and records one
// dispatch or draw. Pipelines are created on first Execute inside a
// [framegraph.Lazy] cell, so a pass whose shader fails to compile logs
// once and skips its work until the next attempt succeeds.
//
// The passes of one frame, in declaration order:
//
//	frame constants  uniform upload
//	depth fill       depth-only raster
//	sky              raster against the read-only depth
//	indirect args    compute writing dispatch arguments
//	ssr trace        indirect compute over color and depth
//	temporal resolve compute blending with last frame's result
//	rt shadows       compute over an occluder buffer viewed as texels
//	blit             raster composite into the backbuffer
//
// Resource names are exported as constants so drivers can compile the
// frame against [Backbuffer] and demos can create [Occluders].
package passes
