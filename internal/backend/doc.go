// Package backend defines the contract between the protocol adapters and the
// single language-model backend they expose.
//
// A Model streams unified events for a unified request. Adapters never call a
// Model directly; they go through Start, which precomputes the input token count
// and returns a Run whose Events sequence always ends with exactly one
// unified.UsageEvent.
package backend
