package framegraph

import (
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/gpucore"
)

// historySuffix names the record that reads last frame's contents.
const historySuffix = " [Previous]"

// historyName returns the name of the previous-frame record of name.
func historyName(name string) string { return name + historySuffix }

// historyPair holds the two backings a history texture ping-pongs
// between. tex[cur] is written this frame; tex[1-cur] holds last frame.
type historyPair struct {
	name string
	desc gpucore.TextureDesc
	tex  [2]*backend.Texture
	cur  int

	// written is the last frame that wrote tex[cur]; read is the last frame
	// that read tex[1-cur].
	written uint64
	read    uint64
}

func (p *historyPair) current() *backend.Texture  { return p.tex[p.cur] }
func (p *historyPair) previous() *backend.Texture { return p.tex[1-p.cur] }

func (p *historyPair) swap() { p.cur = 1 - p.cur }

func (p *historyPair) destroy(be backend.Backend) {
	for i, t := range p.tex {
		if t != nil {
			be.DestroyTexture(t)
			p.tex[i] = nil
		}
	}
}

// newHistoryPair creates both backings of a pair.
func newHistoryPair(be backend.Backend, name string, desc gpucore.TextureDesc, frame uint64) (*historyPair, error) {
	p := &historyPair{name: name, desc: desc.Normalized(), written: frame, read: frame}
	for i, label := range [2]string{name + " [A]", name + " [B]"} {
		t, err := be.CreateTexture(label, desc)
		if err != nil {
			p.destroy(be)
			return nil, err
		}
		p.tex[i] = t
	}
	return p, nil
}
