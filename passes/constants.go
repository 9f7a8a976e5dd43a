package passes

import (
	"context"
	"encoding/binary"
	"image/color"
	"math"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/gpucore"
	"golang.org/x/image/colornames"
)

// constantsSize is the byte size of the uniform block in sky.wgsl.
const constantsSize = 64

// frameRate converts frame numbers to shader time.
const frameRate = 60

type constantsTemp struct {
	out framegraph.ResourceRef
}

// Constants uploads the per-frame uniform block.
type Constants struct {
	Extent   Extent
	Exposure float32
	// Sun is the light direction in xyz and its intensity in w.
	Sun     [4]float32
	Zenith  color.RGBA
	Horizon color.RGBA
}

// NewConstants returns a daylight setup for e.
func NewConstants(e Extent) *Constants {
	return &Constants{
		Extent:   e,
		Exposure: 1,
		Sun:      [4]float32{0.3, 0.6, 1, 4},
		Zenith:   colornames.Steelblue,
		Horizon:  colornames.Lightskyblue,
	}
}

// Name returns "frame constants".
func (p *Constants) Name() string { return FrameConstants }

// Setup declares the uniform buffer as a copy destination.
func (p *Constants) Setup(_ *framegraph.Builder, n *framegraph.Node, s *framegraph.Scratch) {
	tmp := framegraph.TempData[constantsTemp](s)
	tmp.out = n.AddTransferOutput(FrameConstants, &gpucore.BufferDesc{
		Size: constantsSize,
		Kind: gpucore.BufferUniform,
	})
}

// Execute writes the block for the current frame.
func (p *Constants) Execute(_ context.Context, b *framegraph.Builder, s *framegraph.Scratch) error {
	tmp := framegraph.TempData[constantsTemp](s)
	buf, err := writeBuffer(b, tmp.out)
	if err != nil {
		return err
	}
	return b.Backend().WriteBuffer(buf, 0, p.encode(b.Frame()))
}

func (p *Constants) encode(frame uint64) []byte {
	out := make([]byte, 0, constantsSize)
	put := func(v float32) {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	put(float32(p.Extent.Width))
	put(float32(p.Extent.Height))
	put(float32(frame) / frameRate)
	put(p.Exposure)
	for _, v := range p.Sun {
		put(v)
	}
	for _, c := range [2]color.RGBA{p.Zenith, p.Horizon} {
		put(float32(c.R) / 255)
		put(float32(c.G) / 255)
		put(float32(c.B) / 255)
		put(float32(c.A) / 255)
	}
	return out
}
