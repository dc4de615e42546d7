// Package transport opens and accepts the raw byte channels under a peer
// session.
//
// Ownership boundary:
// - connection preamble (session token, channel label, sampling bit)
// - TCP listener emitting labeled incoming streams
// - two-channel dialer for the initiating side
//
// The preamble is how stream provenance reaches the session matcher: both
// channels of one session carry the same token, written by the dialer and
// consumed here before any frame bytes flow. Frame payloads are never
// inspected for identity.
package transport
