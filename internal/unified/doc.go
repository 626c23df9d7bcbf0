// Package unified defines the wire-format independent conversation model shared by
// every protocol adapter and every backend.
//
// Inbound adapters parse a wire request into a Request holding Messages. Backends
// consume that Request and produce a stream of Events. Outbound formatters fold
// the Events back into a protocol response or protocol SSE frames.
//
// The model has only two roles (user, assistant). Protocols with a dedicated
// system channel carry it as an assistant turn.
package unified
