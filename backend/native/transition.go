package native

import (
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ImageTransition is one texture of a barrier batch.
type ImageTransition struct {
	Label    string
	From, To Access
}

// BufferTransition is one buffer of a barrier batch.
type BufferTransition struct {
	Label    string
	From, To AccessFlags
}

// Batch is a barrier translated into device terms.
type Batch struct {
	Label    string
	Src, Dst PipelineStages
	Images   []ImageTransition
	Buffers  []BufferTransition
}

// Transition records bar as a single texture batch and a single buffer
// batch on the frame's encoder.
func (b *Backend) Transition(bar backend.Barrier) error {
	if err := b.recording(); err != nil {
		return err
	}
	if bar.Empty() {
		return nil
	}
	batch := Batch{
		Label: bar.Label,
		Src:   StagesFor(bar.SrcStages, false),
		Dst:   StagesFor(bar.DstStages, true),
	}
	var (
		textures []hal.TextureBarrier
		buffers  []hal.BufferBarrier
	)
	for _, tr := range bar.Transitions {
		switch {
		case tr.Texture != nil:
			raw := rawTexture(tr.Texture)
			if raw == nil {
				return fmt.Errorf("%w: %v", backend.ErrNilResource, tr)
			}
			desc := tr.Texture.Desc()
			textures = append(textures, hal.TextureBarrier{
				Texture: raw,
				Range: hal.TextureRange{
					Aspect:          gputypes.TextureAspectAll,
					MipLevelCount:   desc.MipCount,
					ArrayLayerCount: desc.Layers,
				},
				Usage: hal.TextureUsageTransition{
					OldUsage: textureUsage(tr.Old),
					NewUsage: textureUsage(tr.New),
				},
			})
			batch.Images = append(batch.Images, ImageTransition{
				Label: tr.Texture.Label(),
				From:  Access{Layout: LayoutFor(tr.Old), Access: AccessFor(tr.Old), Stages: batch.Src},
				To:    Access{Layout: LayoutFor(tr.New), Access: AccessFor(tr.New), Stages: batch.Dst},
			})
		case tr.Buffer != nil:
			raw := rawBuffer(tr.Buffer)
			if raw == nil {
				return fmt.Errorf("%w: %v", backend.ErrNilResource, tr)
			}
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: raw,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufferUsage(tr.Old),
					NewUsage: bufferUsage(tr.New),
				},
			})
			batch.Buffers = append(batch.Buffers, BufferTransition{
				Label: tr.Buffer.Label(),
				From:  AccessFor(tr.Old),
				To:    AccessFor(tr.New),
			})
		default:
			return fmt.Errorf("%w: transition without resource", backend.ErrNilResource)
		}
	}

	enc := b.frame.encoder
	if len(textures) > 0 {
		enc.TransitionTextures(textures)
	}
	if len(buffers) > 0 {
		enc.TransitionBuffers(buffers)
	}
	b.stats.barriers.Add(1)
	b.stats.transitions.Add(uint64(len(bar.Transitions)))
	b.lastBatch = batch
	b.log().Debug("native: barrier",
		"pass", bar.Label,
		"images", len(textures),
		"buffers", len(buffers),
	)
	return nil
}

// transitionTexture records a single-texture barrier outside the frame
// graph's bookkeeping. The caller restores the state.
func (b *Backend) transitionTexture(t *backend.Texture, from, to gpucore.State) {
	desc := t.Desc()
	b.frame.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: rawTexture(t),
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   desc.MipCount,
			ArrayLayerCount: desc.Layers,
		},
		Usage: hal.TextureUsageTransition{
			OldUsage: textureUsage(from),
			NewUsage: textureUsage(to),
		},
	}})
}
