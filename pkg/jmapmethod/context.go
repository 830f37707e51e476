package jmapmethod

import "github.com/jmapstore/core/pkg/jmaperr"

// RequestContext carries the per-call limits original_source's
// request/mod.rs enforces before a method body ever runs: how many object
// ids a get/set call may name, and the server's own changes-page cap
// (independent of whatever maxChanges the client asked for).
type RequestContext struct {
	MaxObjectsInGet int
	MaxObjectsInSet int
	MaxChanges      int
}

// DefaultContext returns the limits a freshly configured server applies
// absent any pkg/config override.
func DefaultContext() RequestContext {
	return RequestContext{
		MaxObjectsInGet: 5000,
		MaxObjectsInSet: 5000,
		MaxChanges:      5000,
	}
}

// clampMaxChanges resolves the effective changes-page size: the smaller of
// what the client requested (0 meaning "unspecified") and the server's own
// cap.
func (c RequestContext) clampMaxChanges(requested int) int {
	if requested <= 0 || requested > c.MaxChanges {
		return c.MaxChanges
	}
	return requested
}

func (c RequestContext) checkGetSize(n int) error {
	if c.MaxObjectsInGet > 0 && n > c.MaxObjectsInGet {
		return jmaperr.New(jmaperr.KindRequestTooLarge, "too many ids requested in a single get call")
	}
	return nil
}

func (c RequestContext) checkSetSize(n int) error {
	if c.MaxObjectsInSet > 0 && n > c.MaxObjectsInSet {
		return jmaperr.New(jmaperr.KindRequestTooLarge, "too many objects in a single set call")
	}
	return nil
}
