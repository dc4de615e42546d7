// Package relay routes inbound frames according to the process role.
//
// Ownership boundary:
// - per-role dispatch of frames on active sessions
// - verbatim vs decode-reencode forwarding for bridge roles
// - the enhancement bridge's single-peripheral exclusivity gate
package relay
