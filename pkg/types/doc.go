// Package types is intentionally free of behavior beyond small invariants
// (TypeState bit ops, JMAPState encode/decode, JMAPDate formatting): every
// other package imports it, so it must never import back.
package types
