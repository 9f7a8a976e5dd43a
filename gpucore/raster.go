package gpucore

import "github.com/gogpu/gputypes"

// Viewport is a pixel rectangle render passes draw into.
type Viewport struct {
	X, Y          int32
	Width, Height uint32
}

// RasterState is the rasterizer and depth state shared by raster passes.
// Explicit backends bake it into pipelines at creation time; implicit
// backends apply it when a pass begins.
type RasterState struct {
	Topology     gputypes.PrimitiveTopology
	FrontFace    gputypes.FrontFace
	CullMode     gputypes.CullMode
	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
	Blend        *gputypes.BlendState
	Viewport     Viewport
}

// DefaultRasterState returns back-face culling with reverse-Z depth testing.
func DefaultRasterState() RasterState {
	return RasterState{
		Topology:     gputypes.PrimitiveTopologyTriangleList,
		FrontFace:    gputypes.FrontFaceCCW,
		CullMode:     gputypes.CullModeBack,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: gputypes.CompareFunctionGreaterEqual,
	}
}
