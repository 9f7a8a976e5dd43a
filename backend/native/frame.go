package native

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// frame is one command stream and the objects that must outlive its
// execution on the device.
type frame struct {
	label   string
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
	index   uint64

	groups   []hal.BindGroup
	deferred []func()
}

func (f *frame) release(device hal.Device) {
	for _, g := range f.groups {
		device.DestroyBindGroup(g)
	}
	f.groups = nil
	for _, fn := range f.deferred {
		fn()
	}
	f.deferred = nil
	if f.cmd != nil {
		device.FreeCommandBuffer(f.cmd)
		f.cmd = nil
	}
	f.encoder.Destroy()
}

// BeginFrame opens a new command stream and releases the objects of
// frames the device has finished.
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

// EndFrame closes and submits the command stream.
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
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.Destroy()
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	b.frame = &frame{label: label, encoder: encoder}
	return nil
}

func (b *Backend) submit() error {
	f := b.frame
	b.frame = nil

	cmd, err := f.encoder.EndEncoding()
	if err != nil {
		f.release(b.device)
		return fmt.Errorf("native: end encoding: %w", err)
	}
	f.cmd = cmd
	idx, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		f.release(b.device)
		return fmt.Errorf("native: submit: %w", err)
	}
	f.index = idx
	b.inflight = append(b.inflight, f)
	b.stats.submits.Add(1)
	return nil
}

// retire releases the objects of every submission the queue reports
// complete, or of all submissions when all is set.
func (b *Backend) retire(all bool) {
	done := b.queue.PollCompleted()
	kept := b.inflight[:0]
	for _, f := range b.inflight {
		if all || f.index <= done {
			f.release(b.device)
			continue
		}
		kept = append(kept, f)
	}
	clear(b.inflight[len(kept):])
	b.inflight = kept
}

// deferRelease runs fn once no recorded or in-flight command can
// reference the object it frees.
func (b *Backend) deferRelease(fn func()) {
	switch {
	case b.frame != nil:
		b.frame.deferred = append(b.frame.deferred, fn)
	case len(b.inflight) > 0:
		last := b.inflight[len(b.inflight)-1]
		last.deferred = append(last.deferred, fn)
	default:
		fn()
	}
}
