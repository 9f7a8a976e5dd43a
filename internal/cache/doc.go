// Package cache provides a generic LRU cache.
//
// The frame graph backends use it to keep device objects whose creation is
// expensive and whose key is cheap to compute, such as bind group layouts
// keyed by their binding list. Entries pushed out by capacity are handed
// to an eviction callback so the owner can destroy the device object:
//
//	layouts := cache.New[layoutKey, hal.BindGroupLayout](64)
//	layouts.OnEvict(func(_ layoutKey, l hal.BindGroupLayout) {
//		device.DestroyBindGroupLayout(l)
//	})
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
