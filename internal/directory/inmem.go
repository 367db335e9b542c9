package directory

import (
	"sync"

	"github.com/roomly/signaling/internal/domain"
)

// InMemory implements every consumed collaborator surface against
// process-local maps. It backs the standalone binary and tests; in the
// deployed system the outer application supplies its own adapters.
type InMemory struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomName]RoomInfo
	roles    map[domain.Identity]map[domain.RoomName]domain.Role
	replies  map[domain.Identity][]domain.InvitationReply
	names    map[domain.Identity]string
	locales  map[domain.Identity]domain.Locale
	activity map[domain.RoomName]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		rooms:    make(map[domain.RoomName]RoomInfo),
		roles:    make(map[domain.Identity]map[domain.RoomName]domain.Role),
		replies:  make(map[domain.Identity][]domain.InvitationReply),
		names:    make(map[domain.Identity]string),
		locales:  make(map[domain.Identity]domain.Locale),
		activity: make(map[domain.RoomName]int),
	}
}

// Wrap bundles the in-memory store into a Directory.
func (m *InMemory) Wrap() Directory {
	return Directory{Rooms: m, Roles: m, Invitations: m, Profiles: m}
}

func (m *InMemory) AddRoom(name domain.RoomName, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[name] = RoomInfo{Name: name, Capacity: capacity}
}

func (m *InMemory) Grant(id domain.Identity, room domain.RoomName, role domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles[id] == nil {
		m.roles[id] = make(map[domain.RoomName]domain.Role)
	}
	m.roles[id][room] = role
}

func (m *InMemory) AddReply(to domain.Identity, reply domain.InvitationReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[to] = append(m.replies[to], reply)
}

func (m *InMemory) SetProfile(id domain.Identity, name string, locale domain.Locale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[id] = name
	m.locales[id] = locale
}

func (m *InMemory) Lookup(name domain.RoomName) (RoomInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.rooms[name]
	return info, ok
}

func (m *InMemory) TouchActivity(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity[name]++
}

// ActivityTouches reports how often a room's last-activity marker was
// refreshed. Test observability only.
func (m *InMemory) ActivityTouches(name domain.RoomName) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activity[name]
}

func (m *InMemory) Resolve(id domain.Identity, room domain.RoomName) domain.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles[id][room]
}

func (m *InMemory) UnprocessedFor(id domain.Identity) []domain.InvitationReply {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.InvitationReply, len(m.replies[id]))
	copy(out, m.replies[id])
	return out
}

func (m *InMemory) MarkProcessed(replyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, list := range m.replies {
		kept := list[:0]
		for _, r := range list {
			if r.ID != replyID {
				kept = append(kept, r)
			}
		}
		m.replies[id] = kept
	}
}

func (m *InMemory) DisplayName(id domain.Identity) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.names[id]; ok {
		return name
	}
	return string(id)
}

func (m *InMemory) Locale(id domain.Identity) domain.Locale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if loc, ok := m.locales[id]; ok {
		return loc
	}
	return "en"
}
