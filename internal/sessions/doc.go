// Package sessions correlates a peer's two byte channels into one live
// session and runs its frame pumps.
//
// Ownership boundary:
// - per-endpoint pairing state (Pairing -> Matched -> Active -> Closed)
// - the matching deadline
// - the one-shot descriptor handshake on the primary channel
// - serialized frame dispatch across a session's two concurrent readers
//
// Channel provenance comes from the transport preamble token; nothing here
// looks at frame payloads to decide which session a channel belongs to.
package sessions
