// Package protocol owns the frame wire contract.
//
// Ownership boundary:
// - fixed frame header (magic, version, payload length, sampling extension)
// - blocking frame read/write against io.Reader/io.Writer
// - non-blocking stream delimiting (Decoder)
//
// The header comes in two process-wide variants: 9 bytes normally, 17 bytes
// when sampling (logging) mode is on. The variant is fixed before any stream
// opens and carried out of band by the transport preamble; a receiver never
// infers it from the bytes themselves.
package protocol
