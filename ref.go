package framegraph

import "fmt"

// ResourceType tags a ResourceRef with the kind of record it points to.
type ResourceType uint8

// Resource types.
const (
	ResourceTexture ResourceType = iota + 1
	ResourceBuffer
)

// String returns "texture" or "buffer".
func (t ResourceType) String() string {
	switch t {
	case ResourceTexture:
		return "texture"
	case ResourceBuffer:
		return "buffer"
	}
	return "invalid"
}

// ResourceRef identifies one version of a resource inside one frame.
//
// The generation is the number of writes declared on the resource when
// the ref was issued; a write returns the generation it produces. Refs are
// comparable with ==. The zero value is invalid.
type ResourceRef struct {
	typ   ResourceType
	index uint16
	gen   uint16
}

// Valid reports whether r was issued by a builder.
func (r ResourceRef) Valid() bool { return r.typ != 0 }

// Type returns the record kind.
func (r ResourceRef) Type() ResourceType { return r.typ }

// Index returns the record slot in the frame's resource table.
func (r ResourceRef) Index() int { return int(r.index) }

// Generation returns the resource version the ref refers to.
func (r ResourceRef) Generation() int { return int(r.gen) }

// String formats the ref as "texture#3@1".
func (r ResourceRef) String() string {
	if !r.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%v#%d@%d", r.typ, r.index, r.gen)
}
