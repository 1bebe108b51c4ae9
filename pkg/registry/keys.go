package registry

// Redis key layout. Every ArtStore service reads these; only the element
// health reporter and the admin publisher write them.
const (
	// ElementKeyPrefix + element_id is the per-element hash.
	ElementKeyPrefix = "storage:elements:"

	// RWPriorityKey and EditPriorityKey order writable elements for
	// selection. Score is the element priority; lower is preferred; ties
	// resolve lexicographically by member, which Redis gives for free.
	RWPriorityKey   = "storage:rw:by_priority"
	EditPriorityKey = "storage:edit:by_priority"

	// DiscoveryChannel carries topology snapshots.
	DiscoveryChannel = "artstore:service_discovery"

	// SnapshotKey mirrors the latest snapshot for late joiners.
	SnapshotKey = "artstore:storage_elements"

	// TopologyVersionKey is the INCR counter behind snapshot versions.
	TopologyVersionKey = "artstore:topology_version"

	// RotationLockKey serializes JWT signing key rotation across admin
	// replicas.
	RotationLockKey = "jwt_rotation_lock"
)

// ElementKey returns the hash key for one element.
func ElementKey(elementID string) string {
	return ElementKeyPrefix + elementID
}

// PriorityKey returns the selection zset for a writable mode. The boolean
// is false for RO/AR, which have no selection order.
func PriorityKey(mode Mode) (string, bool) {
	switch mode {
	case ModeRW:
		return RWPriorityKey, true
	case ModeEdit:
		return EditPriorityKey, true
	}
	return "", false
}
