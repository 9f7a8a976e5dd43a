// Package wgpu implements the implicit-state backend over the gogpu/wgpu
// public API.
//
// The public API tracks resource usage itself and inserts the transitions
// a command stream needs. The frame graph still hands the backend one
// [backend.Barrier] per pass. This backend records no barrier commands:
// it checks each transition against the state it last saw for the
// resource and logs any disagreement, which catches frame graph
// bookkeeping errors on APIs where they would otherwise go unnoticed.
//
// Bind groups are rebuilt for every dispatch and draw and released with
// the frame's command buffer. Textures, buffers and views are released
// immediately; the API defers their destruction until pending submissions
// complete.
//
// # Registration
//
// Importing the package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/framegraph/backend/wgpu"
//
// The registered factory requests the best adapter of every HAL
// implementation linked into the program, so import one as well (for
// example github.com/gogpu/wgpu/hal/allbackends). Use [New] with
// [WithDevice] to run on an existing device.
package wgpu
