// Package store implements the store façade (spec §4.7): the public
// surface that wires together a clock, a dispatch-queue discipline, a
// set of per-device logs, a merged projection, the history engine, and
// the file-package coordinator into the single object applications
// hold.
//
// Grounded on internal/engine/engine.go in the teacher for the overall
// shape (a struct wiring several subsystems behind a small public API,
// constructed with New and driven by a handful of serial queues) and on
// original_source/Core/PARStore.h for the exact public operation list
// this façade reproduces in Go idiom: explicit errors instead of
// NSError**, functional options instead of class-side configuration
// methods, an event-channel registry instead of NSNotificationCenter.
package store
