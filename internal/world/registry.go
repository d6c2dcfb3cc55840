package world

import (
	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/queue"
)

// Registry owns every performer in the world and hands out generational
// identities. The generation increments when a slot is recycled, so a stale
// handle held by an old command never resolves to a new occupant.
type Registry struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	performers  map[command.PerformerID]queue.Performer
}

func NewRegistry() *Registry {
	return &Registry{
		generations: make([]uint32, 0, 64),
		freeList:    make([]uint32, 0, 16),
		performers:  make(map[command.PerformerID]queue.Performer),
	}
}

// Reserve allocates an identity with no performer bound yet. The performer
// usually needs its own identity at construction, so allocation is split
// from registration.
func (r *Registry) Reserve() command.PerformerID {
	var idx uint32
	if len(r.freeList) > 0 {
		idx = r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
	} else {
		idx = r.nextIndex
		r.nextIndex++
		if int(idx) >= len(r.generations) {
			r.generations = append(r.generations, 0)
		}
	}
	return command.NewPerformerID(idx, r.generations[idx])
}

// Register binds a performer to a reserved identity.
func (r *Registry) Register(id command.PerformerID, p queue.Performer) {
	r.performers[id] = p
}

// Release frees the identity. Stale releases are no-ops.
func (r *Registry) Release(id command.PerformerID) {
	idx := id.Index()
	if idx >= r.nextIndex || r.generations[idx] != id.Generation() {
		return
	}
	delete(r.performers, id)
	r.generations[idx]++
	r.freeList = append(r.freeList, idx)
}

// Lookup resolves an identity to its performer, or nil for stale handles.
func (r *Registry) Lookup(id command.PerformerID) queue.Performer {
	if _, ok := r.performers[id]; !ok {
		return nil
	}
	return r.performers[id]
}
