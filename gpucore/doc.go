// Package gpucore defines the backend-neutral vocabulary shared by the
// frame graph, its backends and its passes.
//
// Passes express intent with exactly two values per declared access: a
// resource [State] (what the pass will do with the resource) and a
// [StageBits] mask (which pipeline stages will do it). The graph derives
// barriers from the difference between consecutive states; backends
// translate states and stages into their own primitives.
//
// # Resource Shapes
//
// [TextureDesc] and [BufferDesc] describe the shape of a resource. Two
// descriptors with equal [TextureDesc.Key] (or [BufferDesc.Key]) are
// interchangeable for pooling and aliasing purposes, given that the
// backing usage covers the requested usage.
//
// # Usage Derivation
//
// [TexUsageFromState] and [BufUsageFromState] map a state to the device
// usage flags a backing needs to be put into that state. The graph ORs
// these over every declared access of a resource before allocation.
package gpucore
