package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu"
)

// frame is one command encoder and the bind groups its passes used.
type frame struct {
	encoder *wgpu.CommandEncoder
	cmd     *wgpu.CommandBuffer
	index   uint64
	groups  []*wgpu.BindGroup
}

func (f *frame) release() {
	for _, g := range f.groups {
		g.Release()
	}
	f.groups = nil
	if f.cmd != nil {
		f.cmd.Release()
		f.cmd = nil
	}
}

// BeginFrame opens a command encoder.
func (b *Backend) BeginFrame() error {
	if err := b.check(); err != nil {
		return err
	}
	if b.frame != nil {
		return ErrFrameOpen
	}
	b.retire(false)
	return b.begin("frame")
}

// EndFrame finishes and submits the frame's commands.
func (b *Backend) EndFrame() error {
	if err := b.recording(); err != nil {
		return err
	}
	if err := b.submit(); err != nil {
		return err
	}
	b.retire(false)
	return nil
}

func (b *Backend) begin(label string) error {
	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	b.frame = &frame{encoder: encoder}
	return nil
}

func (b *Backend) submit() error {
	f := b.frame
	b.frame = nil

	cmd, err := f.encoder.Finish()
	if err != nil {
		f.release()
		return fmt.Errorf("wgpu: finish: %w", err)
	}
	f.cmd = cmd
	idx, err := b.queue.Submit(cmd)
	if err != nil {
		f.release()
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	f.index = idx
	b.inflight = append(b.inflight, f)
	b.stats.submits.Add(1)
	return nil
}

// retire releases the frames the queue reports complete, or all frames.
func (b *Backend) retire(all bool) {
	done := b.queue.Poll()
	kept := b.inflight[:0]
	for _, f := range b.inflight {
		if all || f.index <= done {
			f.release()
			continue
		}
		kept = append(kept, f)
	}
	clear(b.inflight[len(kept):])
	b.inflight = kept
}
