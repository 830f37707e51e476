// Package jmapmethod implements the generic get/changes/query/queryChanges/
// set method surface every JMAP collection shares (RFC 8620 §5), wiring
// pkg/orm's per-collection Schema against pkg/store, pkg/changelog,
// pkg/query, pkg/alloc and pkg/pipeline so that a transport layer
// (pkg/api, not yet built) only has to decode a method call's arguments
// and dispatch to one of these functions.
//
// Grounded on original_source/components/jmap/src/request/mod.rs for the
// Method enum and per-request budget shape (RequestContext), and on
// components/jmap_mail/src/mailbox/get.rs / src/set.rs /
// vacation_response/set.rs for the Get/Set control flow: resolve ids (or
// every live id), load, filter not-found, and — for Set — validate each
// create/update/destroy independently so one invalid object in a batch
// never rolls back its siblings.
package jmapmethod
