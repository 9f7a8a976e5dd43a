// Package backend provides the dispatch shim between the frame graph and a
// concrete graphics API.
//
// The frame graph is written against the backend-neutral state enum and
// stage mask of package gpucore. A [Backend] translates those into the
// primitives of whichever API is active. Two implementations exist:
//
//   - "native" (backend/native): explicit barriers over gogpu/wgpu/hal.
//     Image layouts, access masks and pipeline stages are derived from
//     state pairs and batched into one barrier per pass.
//   - "wgpu" (backend/wgpu): implicit state over the gogpu/wgpu public
//     API. Resources are rebound per draw and the state enum is kept for
//     bookkeeping only.
//
// # Backend Registration
//
// Backends register themselves from init() functions:
//
//	import _ "github.com/gogpu/framegraph/backend/native"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Default()
//
//	// Or request a specific backend
//	b := backend.Get("wgpu")
//
// # Backing Objects
//
// [Texture] and [Buffer] wrap a device allocation together with its
// descriptor and its current synchronization state. Only the frame graph
// mutates the state; backends read it when they need the previous access
// pattern, for example to build a render pass load operation.
package backend
