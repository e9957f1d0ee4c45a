package types

const (
	// GroupTreeMaxLevels is the depth of a group membership merkle tree.
	// Merkle paths are always padded to this many levels.
	GroupTreeMaxLevels = 18
	// ScalarSize is the byte width of a serialized scalar field element.
	ScalarSize = 32
	// PublicSignalsCount is the number of public inputs of the membership
	// circuit: root, nullifier, groupId, contextId, payload and commitment,
	// in that exact order.
	PublicSignalsCount = 6
)
