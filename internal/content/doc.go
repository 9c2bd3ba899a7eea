// Package content maps application content types to mailing behavior.
//
// A Registry holds one Adapter per content type. Application startup code
// registers every mailable type before any dispatch references it; the
// registry value is then handed to the dispatch service and the delivery
// worker. References encode (content type, object id) pairs so a dispatch
// record can point at an object of any registered type, and Resolve turns
// them back into live objects through a caller-supplied Lookup.
package content
