// Package record defines the check-in entities shared by every other package.
//
// A Record is one check-in event at the front desk. It is created exactly once
// by the registry, never mutated, and never deleted. Fields is the raw operator
// input that a Record is built from.
//
// This package contains types and input normalisation only. It imports nothing
// internal, so storage, registry, mirror and ticket code can all depend on it.
package record
