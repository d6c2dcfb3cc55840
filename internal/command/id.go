package command

// PerformerID identifies the actor or stateful item a command is addressed
// to. It encodes a 32-bit registry index in the lower bits and a 32-bit
// generation in the upper bits; the generation increments when the slot is
// recycled, so stale handles never resolve to a new occupant.
type PerformerID uint64

func NewPerformerID(index uint32, generation uint32) PerformerID {
	return PerformerID(uint64(generation)<<32 | uint64(index))
}

func (id PerformerID) Index() uint32      { return uint32(id) }
func (id PerformerID) Generation() uint32 { return uint32(id >> 32) }
func (id PerformerID) IsZero() bool       { return id == 0 }
