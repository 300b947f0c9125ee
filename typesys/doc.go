// Package typesys implements the canonical type system and object model of
// spec.md section 3 and section 4.A: one Type Descriptor (TD) per loaded
// type, one Method Descriptor (MD) per method, object-header layout,
// interface-map construction, vtable-slot lookup, and the generic
// instantiation table. Nothing in this package builds a TD's VTable.
//
// TDs and MDs are created once (by package loader, when their module is
// loaded) and live
// for the lifetime of the core — there is no unload path (spec.md section 1
// Non-goals). This package never allocates heap objects itself; it only
// describes their shape. Allocation is package gc's job, using the layout
// this package computes.
package typesys
