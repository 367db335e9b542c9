package registry

import (
	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/domain"
)

// Broadcast delivers frame to every member of room except excludeID.
// Order across peers is unspecified; per-peer order follows send order.
// A handle that refuses the frame is skipped, cleanup belongs to the
// liveness sweep. Returns the number of peers reached.
func (r *Registry) Broadcast(room domain.RoomName, excludeID string, frame []byte) int {
	if room == "" {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for id, p := range r.peers {
		if id == excludeID || p.room != room || p.handle == nil {
			continue
		}
		if err := p.handle.TrySend(frame); err != nil {
			log.Debug().Str("module", "registry").Str("id", id).Err(err).Msg("broadcast drop")
			continue
		}
		sent++
	}
	return sent
}

// Unicast delivers frame to exactly one entry, silently doing nothing
// when the entry is absent or its handle refuses. Callers that need a
// fallback decide on it before calling, not after.
func (r *Registry) Unicast(id string, frame []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok || p.handle == nil {
		return false
	}
	if err := p.handle.TrySend(frame); err != nil {
		log.Debug().Str("module", "registry").Str("id", id).Err(err).Msg("unicast drop")
		return false
	}
	return true
}
