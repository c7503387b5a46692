//go:build !debug

// Package debug provides build-tag-gated assertions used at invariant
// boundaries throughout the core pipeline (manifest soundness, the
// ingest buffer lock never being held across I/O, and so on).
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool)           {}
