// Package shader loads shader programs for frame graph passes.
//
// A program is requested by name together with a list of WGSL source
// fragments (shared declarations first, entry points last). The loader
// concatenates the fragments, compiles them with the pure-Go naga
// compiler and caches the result by name, so passes can call LoadProgram
// from their lazy initialization every frame at map-lookup cost.
//
// A [Program] carries both the WGSL text (for backends that accept WGSL)
// and the SPIR-V words (for backends that need a binary), plus the entry
// points found during compilation.
package shader
