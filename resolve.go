package framegraph

import (
	"context"
	"fmt"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/gputypes"
)

// GetReadTexture resolves a ref the executing node declared as input.
//
// On ErrUndeclaredAccess, ErrStaleRef and ErrStateMismatch the record is
// still returned so the pass can render a degraded frame.
func (b *Builder) GetReadTexture(r ResourceRef) (*Texture, error) {
	if err := b.checkRef(r, ResourceTexture); err != nil {
		return nil, b.resolveFailed(err)
	}
	t := b.textures[r.index]
	return t, b.resolveFailed(b.checkAccess(&t.resource, t.State(), t.Backing() != nil, r, false))
}

// GetWriteTexture resolves a ref the executing node declared as output.
func (b *Builder) GetWriteTexture(r ResourceRef) (*Texture, error) {
	if err := b.checkRef(r, ResourceTexture); err != nil {
		return nil, b.resolveFailed(err)
	}
	t := b.textures[r.index]
	return t, b.resolveFailed(b.checkAccess(&t.resource, t.State(), t.Backing() != nil, r, true))
}

// GetReadBuffer resolves a ref the executing node declared as input.
func (b *Builder) GetReadBuffer(r ResourceRef) (*Buffer, error) {
	if err := b.checkRef(r, ResourceBuffer); err != nil {
		return nil, b.resolveFailed(err)
	}
	buf := b.buffers[r.index]
	return buf, b.resolveFailed(b.checkAccess(&buf.resource, buf.State(), buf.Backing() != nil, r, false))
}

// GetWriteBuffer resolves a ref the executing node declared as output.
func (b *Builder) GetWriteBuffer(r ResourceRef) (*Buffer, error) {
	if err := b.checkRef(r, ResourceBuffer); err != nil {
		return nil, b.resolveFailed(err)
	}
	buf := b.buffers[r.index]
	return buf, b.resolveFailed(b.checkAccess(&buf.resource, buf.State(), buf.Backing() != nil, r, true))
}

// BufferView returns a typed texel view over the buffer r refers to. The
// view is cached on the backing. Creating it the first time submits all
// recorded work and waits for the device.
func (b *Builder) BufferView(ctx context.Context, r ResourceRef, format gputypes.TextureFormat) (*backend.BufferView, error) {
	if err := b.checkRef(r, ResourceBuffer); err != nil {
		return nil, b.resolveFailed(err)
	}
	buf := b.buffers[r.index]
	if b.current.input(r) == nil && b.current.output(r) == nil {
		return nil, b.resolveFailed(fmt.Errorf("%w: %q did not declare buffer %q",
			ErrUndeclaredAccess, b.current.name, buf.name))
	}
	bb := buf.Backing()
	if bb == nil {
		return nil, b.resolveFailed(fmt.Errorf("%w: buffer %q has no backing", ErrStateMismatch, buf.name))
	}
	if v := bb.View(format); v != nil {
		return v, nil
	}

	Logger().Info("framegraph: buffer view waits for the device",
		"frame", b.frame, "node", b.current.name, "buffer", buf.name, "format", format)
	if err := b.g.be.SubmitAndWait(ctx); err != nil {
		return nil, fmt.Errorf("framegraph: buffer view %q: %w", buf.name, err)
	}
	b.stalls++
	v, err := b.g.be.CreateBufferView(bb, format)
	if err != nil {
		Logger().Error("framegraph: buffer view failed", "node", b.current.name, "buffer", buf.name, "err", err)
		return nil, fmt.Errorf("framegraph: buffer view %q: %w", buf.name, err)
	}
	bb.SetView(v)
	return v, nil
}

// checkRef validates the phase and the ref itself.
func (b *Builder) checkRef(r ResourceRef, typ ResourceType) error {
	if b.phase != PhaseExecuting || b.current == nil {
		return fmt.Errorf("%w: resolve %v in phase %v", ErrNotExecuting, r, b.phase)
	}
	if r.typ != typ {
		return fmt.Errorf("%w: %v is not a %v", ErrInvalidRef, r, typ)
	}
	n := len(b.textures)
	if typ == ResourceBuffer {
		n = len(b.buffers)
	}
	if int(r.index) >= n {
		return fmt.Errorf("%w: %v out of range", ErrInvalidRef, r)
	}
	return nil
}

// checkAccess validates that the executing node declared r and that the
// frame reached the declared version and state.
func (b *Builder) checkAccess(res *resource, state gpucore.State, bound bool, r ResourceRef, write bool) error {
	n := b.current
	kind := "input"
	a := n.input(r)
	if write {
		kind = "output"
		a = n.output(r)
	}
	if a == nil {
		return fmt.Errorf("%w: %q did not declare %q as %s", ErrUndeclaredAccess, n.name, res.name, kind)
	}

	have := res.execWrites
	if write {
		have++
	}
	if a.gen != r.gen || have != r.gen {
		return fmt.Errorf("%w: %q resolves %q version %d, declared %d, frame at %d",
			ErrStaleRef, n.name, res.name, r.gen, a.gen, res.execWrites)
	}
	if !bound || state != a.state {
		return fmt.Errorf("%w: %q needs %q in %v, backing is in %v",
			ErrStateMismatch, n.name, res.name, a.state, state)
	}
	return nil
}

// resolveFailed logs and collects a resolution error. Debug graphs panic.
func (b *Builder) resolveFailed(err error) error {
	if err == nil {
		return nil
	}
	node := ""
	if b.current != nil {
		node = b.current.name
	}
	Logger().Error("framegraph: resolve failed", "frame", b.frame, "node", node, "err", err)
	b.errs = append(b.errs, err)
	if b.g.opts.debug {
		panic(err)
	}
	return err
}
