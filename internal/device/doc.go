// Package device owns the controller identity record.
//
// Ownership boundary:
// - Descriptor value type and its enum codes
// - stable-UID resolution against a persisted store
// - host-name fallback for the vendor field
// - descriptor wire encoding (ordered tlv fields)
package device
