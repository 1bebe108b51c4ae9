// Package registry is the shared topology layer of ArtStore.
//
// The admin module owns the storage-element records in its database; Redis
// carries the live, ephemeral view every other service works from:
//
//   - storage:elements:{element_id}: per-element hash written by the
//     element's health reporter, expiring when the element goes silent
//   - storage:rw:by_priority, storage:edit:by_priority: selection order
//     (score = priority, ties resolve lexicographically by member)
//   - artstore:storage_elements: last full topology snapshot (1h TTL)
//   - artstore:service_discovery: pub/sub channel for snapshot fan-out
//   - artstore:topology_version: INCR counter making snapshots ordered
//
// The package also provides the Redis client constructor shared by the
// event, rate-limit and lock layers, and a SET NX EX distributed lock with
// owner-checked release.
package registry
