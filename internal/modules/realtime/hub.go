// README: Broadcast hub mapping rooms to live connection handles.
package realtime

import (
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"kitchenline/internal/logging"
	"kitchenline/internal/metrics"
)

// Member is a connection handle owned by the hub. Deliver must not block and
// reports false when the handle cannot take the frame.
type Member interface {
	ID() uint64
	Deliver(frame []byte) bool
	Close()
}

// Mirror receives every frame the hub accepted. It must not block.
type Mirror interface {
	Mirror(eventType string, rooms []Room, frame []byte)
}

type Hub struct {
	mu      sync.RWMutex
	members map[Member]map[Room]struct{}
	rooms   map[Room]map[Member]struct{}

	mirror Mirror
}

func NewHub() *Hub {
	return &Hub{
		members: make(map[Member]map[Room]struct{}),
		rooms:   make(map[Room]map[Member]struct{}),
	}
}

// SetMirror installs m; call before serving traffic.
func (h *Hub) SetMirror(m Mirror) {
	h.mu.Lock()
	h.mirror = m
	h.mu.Unlock()
}

func (h *Hub) Register(m Member) {
	h.mu.Lock()
	if _, ok := h.members[m]; !ok {
		h.members[m] = make(map[Room]struct{})
		metrics.HubClients.Inc()
	}
	total := len(h.members)
	h.mu.Unlock()
	logging.Debug().Uint64("client_id", m.ID()).Int("total_clients", total).Msg("realtime client connected")
}

// Unregister drops m from every room. It does not close m.
func (h *Hub) Unregister(m Member) {
	h.mu.Lock()
	rooms, ok := h.members[m]
	if ok {
		for room := range rooms {
			h.removeLocked(room, m)
		}
		delete(h.members, m)
		metrics.HubClients.Dec()
	}
	total := len(h.members)
	h.mu.Unlock()
	if ok {
		logging.Debug().Uint64("client_id", m.ID()).Int("total_clients", total).Msg("realtime client disconnected")
	}
}

// Join adds m to room, registering it on first use.
func (h *Hub) Join(room Room, m Member) error {
	if !room.Valid() {
		return ErrUnknownRoom
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.members[m]
	if !ok {
		rooms = make(map[Room]struct{})
		h.members[m] = rooms
		metrics.HubClients.Inc()
	}
	if _, in := rooms[room]; in {
		return nil
	}
	rooms[room] = struct{}{}
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[Member]struct{})
		h.rooms[room] = set
	}
	set[m] = struct{}{}
	metrics.HubRoomMembers.WithLabelValues(room.Kind()).Inc()
	logging.Debug().Uint64("client_id", m.ID()).Str("room", string(room)).Msg("joined room")
	return nil
}

func (h *Hub) Leave(room Room, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.members[m]; ok {
		if _, in := rooms[room]; in {
			delete(rooms, room)
			h.removeLocked(room, m)
			logging.Debug().Uint64("client_id", m.ID()).Str("room", string(room)).Msg("left room")
		}
	}
}

func (h *Hub) removeLocked(room Room, m Member) {
	set, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, in := set[m]; !in {
		return
	}
	delete(set, m)
	metrics.HubRoomMembers.WithLabelValues(room.Kind()).Dec()
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// Publish encodes the event once and hands it to every member of rooms.
// Members in several target rooms receive it once. Rooms without members
// are skipped silently. It returns the number of members that took the frame.
func (h *Hub) Publish(eventType string, payload any, rooms ...Room) (int, error) {
	frame, err := encode(eventType, payload)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	seen := make(map[Member]struct{})
	for _, room := range rooms {
		for m := range h.rooms[room] {
			seen[m] = struct{}{}
		}
	}
	targets := snapshot(seen)
	mirror := h.mirror
	h.mu.RUnlock()

	return h.fanOut(eventType, frame, targets, rooms, mirror), nil
}

// Broadcast sends the event to every connected member, joined or not.
func (h *Hub) Broadcast(eventType string, payload any) (int, error) {
	frame, err := encode(eventType, payload)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	targets := make([]Member, 0, len(h.members))
	for m := range h.members {
		targets = append(targets, m)
	}
	mirror := h.mirror
	h.mu.RUnlock()
	sortMembers(targets)

	return h.fanOut(eventType, frame, targets, nil, mirror), nil
}

// Send delivers a frame to one member without touching rooms.
func (h *Hub) Send(m Member, msgType string, payload any) bool {
	frame, err := encode(msgType, payload)
	if err != nil {
		return false
	}
	return m.Deliver(frame)
}

func (h *Hub) fanOut(eventType string, frame []byte, targets []Member, rooms []Room, mirror Mirror) int {
	metrics.HubEventsPublished.WithLabelValues(eventType).Inc()
	sent := 0
	for _, m := range targets {
		if m.Deliver(frame) {
			sent++
			metrics.HubDeliveries.WithLabelValues("sent").Inc()
			continue
		}
		// A full buffer means the client fell behind; it recovers by polling.
		metrics.HubDeliveries.WithLabelValues("evicted").Inc()
		logging.Warn().Uint64("client_id", m.ID()).Str("type", eventType).Msg("evicting slow realtime client")
		h.Unregister(m)
		m.Close()
	}
	if mirror != nil {
		mirror.Mirror(eventType, rooms, frame)
	}
	return sent
}

// CloseAll disconnects every member, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make([]Member, 0, len(h.members))
	for m := range h.members {
		all = append(all, m)
	}
	h.mu.Unlock()
	for _, m := range all {
		h.Unregister(m)
		m.Close()
	}
}

type Stats struct {
	Clients int            `json:"clients"`
	Rooms   map[string]int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{Clients: len(h.members), Rooms: make(map[string]int, len(h.rooms))}
	for room, set := range h.rooms {
		st.Rooms[string(room)] = len(set)
	}
	return st
}

// HasMembers reports whether room currently has anyone in it.
func (h *Hub) HasMembers(room Room) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room]) > 0
}

func encode(msgType string, payload any) ([]byte, error) {
	if msgType == "" {
		metrics.HubRejectedPayloads.Inc()
		return nil, ErrInvalidPayload
	}
	frame, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		metrics.HubRejectedPayloads.Inc()
		return nil, ErrInvalidPayload
	}
	return frame, nil
}

func snapshot(set map[Member]struct{}) []Member {
	out := make([]Member, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sortMembers(out)
	return out
}

// sortMembers keeps fan-out order stable across runs.
func sortMembers(ms []Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID() < ms[j].ID() })
}
