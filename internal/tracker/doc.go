// Package tracker maintains regressions: groups of one pass result and the
// fail results that follow it for the same lineage.
//
// Routing table (result, existing regression for the lineage):
//
//	pass, none      -> create
//	fail, existing  -> extend
//	any,  existing that already holds the node ID -> duplicate (no write)
//	everything else -> ignored (no write)
//
// Redelivered nodes are deduplicated here by node ID, so the tracker stays a
// restartable projection even over an at-least-once stream.
package tracker
