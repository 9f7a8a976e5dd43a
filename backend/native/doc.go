// Package native implements the explicit-barrier backend over the
// gogpu/wgpu HAL.
//
// Every frame records into a single HAL command encoder. The frame graph
// hands the backend one [backend.Barrier] per pass; the backend turns each
// state pair into a layout, access and stage triple and issues the whole
// batch as one TransitionTextures and one TransitionBuffers call before
// the pass records its work.
//
// Bind groups are built from the binding list of each dispatch or draw.
// Bind group layouts are cached by their slot signature and destroyed
// when evicted. Per-frame objects (bind groups, command buffers) are
// retired once the queue reports their submission complete.
//
// # Registration
//
// Importing the package registers the "native" backend:
//
//	import _ "github.com/gogpu/framegraph/backend/native"
//
// The registered factory opens the best HAL backend registered with
// package hal. Import a HAL implementation (for example hal/vulkan or,
// for headless tests, hal/noop) alongside it. Use [New] with
// [WithDevice] to run on a device opened elsewhere.
//
// # Texel Buffers
//
// The HAL has no typed buffer views. A [backend.BufferView] created by
// this backend aliases its buffer and binds as a read-only storage buffer;
// shaders index it by element.
package native
