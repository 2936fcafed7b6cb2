// Package cache provides the generic keyed cache behind the render-graph
// structural caches.
//
// Values are created lazily on first lookup and live until they are deleted
// or the cache is cleared. There is no eviction: cached objects are GPU
// handles whose destruction the owner controls.
//
//	passes := cache.New[RenderPassKey, RenderPass]()
//	rp, err := passes.GetOrCreate(key, func() (RenderPass, error) {
//	    return device.CreateRenderPass(key)
//	})
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
