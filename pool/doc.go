// Package pool owns the playback resources of a media feed.
//
// A Pool maps feed indices to resources and is driven by a single control
// goroutine: every method must be called from that goroutine. Loads run on
// background goroutines and report back through Completions(); the control
// goroutine hands each one to Complete.
//
// Resource lifecycle:
//
//	Idle → Preparing → Ready ⇄ Playing ⇄ Paused → Released
//
// Any state may move directly to Released. At most one resource is Playing.
//
// Every Acquire of an index bumps that index's generation. A completion
// carries the generation it was started for and is dropped if the resource
// has since been released or replaced, so a load that finishes after its
// index left the window never touches the resource that later took its place.
package pool
