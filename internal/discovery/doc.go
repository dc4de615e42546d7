// Package discovery owns service advertisement and browsing.
//
// Ownership boundary:
// - directory type strings derived from the application identifier
// - role gating of publish/unpublish
// - browse event stream (endpoint appeared/disappeared)
//
// The platform publish/browse/resolve primitive is behind the Directory
// interface: MDNSDirectory runs over multicast DNS, MemoryHub serves tests
// and single-process setups. Resolve failures are per endpoint and never
// terminate a browse stream.
package discovery
