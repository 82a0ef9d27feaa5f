package world

import (
	"math"
	"sort"
	"sync"
)

// Store owns every known entity and the grid index over them. A single lock
// covers the object map, the player map and the grid, so compound operations
// (add, remove, move) are atomic to concurrent readers.
//
// The local player is kept outside the remote player map but is indexed in
// the grid like any other player. Once it exists, the active window follows
// its cell and world objects outside that window are dropped.
type Store struct {
	mu sync.RWMutex

	objects map[int32]*Entity
	players map[int32]*Entity
	local   *Entity
	dead    bool
	grid    grid
	window  Window

	mapW, mapH float32
}

func NewStore() *Store {
	return &Store{
		objects: map[int32]*Entity{},
		players: map[int32]*Entity{},
		grid:    newGrid(),
	}
}

// AddObject inserts a world object. It is a no-op if the id is taken, or if
// the object lies outside the active window.
func (s *Store) AddObject(e Entity) bool {
	if !e.Kind.IsObject() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addObjectLocked(e)
}

// AddPlayer inserts a remote player. It is a no-op if the id is taken,
// including by the local player.
func (s *Store) AddPlayer(e Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPlayerLocked(e)
}

// PutObject replaces any object with the same id by e.
func (s *Store) PutObject(e Entity) bool {
	if !e.Kind.IsObject() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(ObjectRef(e.ID))
	return s.addObjectLocked(e)
}

// PutPlayer replaces any remote player with the same id by e.
func (s *Store) PutPlayer(e Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil && s.local.ID == e.ID {
		return false
	}
	s.removeLocked(PlayerRef(e.ID))
	return s.addPlayerLocked(e)
}

// addObjectLocked refuses objects outside the active window once a local
// player exists: the window is the only region objects are kept for.
func (s *Store) addObjectLocked(e Entity) bool {
	if _, ok := s.objects[e.ID]; ok {
		return false
	}
	if s.local != nil && !s.window.Contains(e.Cell()) {
		return false
	}
	p := &e
	s.objects[e.ID] = p
	s.grid.insert(p)
	return true
}

func (s *Store) addPlayerLocked(e Entity) bool {
	if _, ok := s.players[e.ID]; ok {
		return false
	}
	if s.local != nil && s.local.ID == e.ID {
		return false
	}
	e.Kind = KindRemotePlayer
	e.MoveCoef = MoveCoef(e.Size)
	p := &e
	s.players[e.ID] = p
	s.grid.insert(p)
	return true
}

// SetLocal replaces the local player wholesale and recenters the active
// window on it. A remote player with the same id is dropped.
func (s *Store) SetLocal(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil {
		s.grid.delete(s.local.Cell(), s.local.Ref())
	}
	s.removeLocked(PlayerRef(e.ID))
	e.Kind = KindLocalPlayer
	e.MoveCoef = MoveCoef(e.Size)
	e.Consumed = false
	p := &e
	s.local = p
	s.dead = false
	s.grid.insert(p)
	s.recenterLocked(p.Cell())
}

// Remove deletes the referenced entity. Removing the local player clears it.
func (s *Store) Remove(ref Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isLocal(ref) {
		s.grid.delete(s.local.Cell(), ref)
		s.local = nil
		s.dead = false
		return true
	}
	return s.removeLocked(ref)
}

func (s *Store) removeLocked(ref Ref) bool {
	m := s.objects
	if ref.NS == Players {
		m = s.players
	}
	e, ok := m[ref.ID]
	if !ok {
		return false
	}
	delete(m, ref.ID)
	s.grid.delete(e.Cell(), ref)
	return true
}

func (s *Store) isLocal(ref Ref) bool {
	return ref.NS == Players && s.local != nil && s.local.ID == ref.ID
}

func (s *Store) lookup(ref Ref) *Entity {
	if s.isLocal(ref) {
		return s.local
	}
	if ref.NS == Players {
		return s.players[ref.ID]
	}
	return s.objects[ref.ID]
}

// Move relocates an entity and keeps the grid in step. It reports whether the
// entity is still stored afterwards: entities leaving the active window are
// evicted.
func (s *Store) Move(ref Ref, x, y float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil {
		return false
	}
	return s.moveLocked(e, x, y)
}

func (s *Store) moveLocked(e *Entity, x, y float32) bool {
	from := e.Cell()
	e.X, e.Y = x, y
	to := e.Cell()
	if from == to {
		return true
	}
	ref := e.Ref()
	if e == s.local {
		s.grid.delete(from, ref)
		s.grid.insert(e)
		s.recenterLocked(to)
		return true
	}
	if s.local != nil && !s.window.Contains(to) {
		if ref.NS == Players {
			delete(s.players, ref.ID)
		} else {
			delete(s.objects, ref.ID)
		}
		s.grid.delete(from, ref)
		return false
	}
	s.grid.delete(from, ref)
	s.grid.insert(e)
	return true
}

// recenterLocked moves the active window and drops every world object whose
// cell fell out of it. Players are left alone.
func (s *Store) recenterLocked(center Cell) {
	s.window = WindowAround(center)
	for c, b := range s.grid.cells {
		if s.window.Contains(c) {
			continue
		}
		for ref := range b {
			if ref.NS == Objects {
				delete(s.objects, ref.ID)
				delete(b, ref)
			}
		}
		if len(b) == 0 {
			delete(s.grid.cells, c)
		}
	}
}

// Window returns the active window; ok is false until a local player exists.
func (s *Store) Window() (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window, s.local != nil
}

func (s *Store) FindPlayer(id int32) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.players[id]; ok {
		return *e, true
	}
	return Entity{}, false
}

func (s *Store) FindObject(id int32) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.objects[id]; ok {
		return *e, true
	}
	return Entity{}, false
}

func (s *Store) Local() (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.local == nil {
		return Entity{}, false
	}
	return *s.local, true
}

// LocalID returns the local player's id, or ok=false if there is none.
func (s *Store) LocalID() (int32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.local == nil {
		return 0, false
	}
	return s.local.ID, true
}

// CellOf returns the grid cell an entity is indexed under.
func (s *Store) CellOf(ref Ref) (Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c, b := range s.grid.cells {
		if _, ok := b[ref]; ok {
			return c, true
		}
	}
	return Cell{}, false
}

// Bucket lists the refs indexed under c, sorted.
func (s *Store) Bucket(c Cell) []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.grid.cells[c]
	out := make([]Ref, 0, len(b))
	for ref := range b {
		out = append(out, ref)
	}
	sortRefs(out)
	return out
}

// ClosestInteractable scans the 3x3 cells around the local player and returns
// the nearest candidate that is not already consumed. World objects are
// ranked by Manhattan distance, players by Euclidean distance to their edge.
func (s *Store) ClosestInteractable() (Entity, float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, d := s.closestLocked()
	if e == nil {
		return Entity{}, 0, false
	}
	return *e, d, true
}

func (s *Store) closestLocked() (*Entity, float32) {
	if s.local == nil {
		return nil, 0
	}
	var (
		best  *Entity
		bestD = float32(math.MaxFloat32)
	)
	for _, c := range neighborhood(s.local.Cell()) {
		for _, e := range s.grid.cells[c] {
			if e == s.local || e.Consumed {
				continue
			}
			dx, dy := e.X-s.local.X, e.Y-s.local.Y
			var d float32
			if e.Kind.IsPlayer() {
				d = hypot(dx, dy) - Radius(e.Size)
			} else {
				d = abs32(dx) + abs32(dy)
			}
			if best == nil || d < bestD || (d == bestD && lessRef(e.Ref(), best.Ref())) {
				best, bestD = e, d
			}
		}
	}
	return best, bestD
}

// CurrentIntersection returns the closest candidate if it is within capture
// distance of the local player.
func (s *Store) CurrentIntersection() (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.intersectionLocked()
	if e == nil {
		return Entity{}, false
	}
	return *e, true
}

func (s *Store) intersectionLocked() *Entity {
	e, _ := s.closestLocked()
	if e == nil {
		return nil
	}
	minD := Radius(s.local.Size)
	dx, dy := e.X-s.local.X, e.Y-s.local.Y
	var d float32
	if e.Kind.IsPlayer() {
		d = hypot(dx, dy) - Radius(e.Size)
	} else {
		if minD < MinObjectCaptureDistance {
			minD = MinObjectCaptureDistance
		}
		d = hypot(dx, dy)
	}
	if d <= minD {
		return e
	}
	return nil
}

// ClaimIntersection finds the current intersection and marks it consumed in
// one step, so concurrent callers never claim the same entity twice.
func (s *Store) ClaimIntersection() (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.intersectionLocked()
	if e == nil {
		return Entity{}, false
	}
	e.Consumed = true
	return *e, true
}

func (s *Store) MarkConsumed(ref Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil {
		return false
	}
	e.Consumed = true
	return true
}

// SetPlayerSize is the only place a player's move coefficient changes.
func (s *Store) SetPlayerSize(ref Ref, size int32) bool {
	if ref.NS != Players {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil {
		return false
	}
	setSize(e, size)
	return true
}

// GrowPlayer adds a signed delta to a player's size.
func (s *Store) GrowPlayer(ref Ref, delta int32) bool {
	if ref.NS != Players {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil {
		return false
	}
	setSize(e, e.Size+delta)
	return true
}

func setSize(e *Entity, size int32) {
	e.Size = size
	e.MoveCoef = MoveCoef(size)
}

func (s *Store) SetAngle(ref Ref, angle float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil || !e.Kind.IsPlayer() {
		return false
	}
	e.Angle = angle
	return true
}

func (s *Store) SetMoving(ref Ref, moving bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(ref)
	if e == nil || !e.Kind.IsPlayer() {
		return false
	}
	e.Moving = moving
	return true
}

func (s *Store) SetMapSize(w, h float32) {
	s.mu.Lock()
	s.mapW, s.mapH = w, h
	s.mu.Unlock()
}

func (s *Store) MapSize() (w, h float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapW, s.mapH
}

// SetLocalDead flags the local player as eaten. It stays in the store for
// rendering until the next snapshot replaces it.
func (s *Store) SetLocalDead(dead bool) {
	s.mu.Lock()
	s.dead = dead
	s.mu.Unlock()
}

func (s *Store) LocalDead() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dead
}

// WipeAll clears every container, the local player and map size.
func (s *Store) WipeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = map[int32]*Entity{}
	s.players = map[int32]*Entity{}
	s.local = nil
	s.dead = false
	s.window = Window{}
	s.grid.reset()
	s.mapW, s.mapH = 0, 0
}

// Counts returns the number of world objects and remote players.
func (s *Store) Counts() (objects, players int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects), len(s.players)
}

// Snapshot is a consistent copy of the store, sorted by id.
type Snapshot struct {
	MapWidth  float32
	MapHeight float32
	Local     *Entity
	LocalDead bool
	Players   []Entity
	Objects   []Entity
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		MapWidth:  s.mapW,
		MapHeight: s.mapH,
		LocalDead: s.dead,
		Players:   make([]Entity, 0, len(s.players)),
		Objects:   make([]Entity, 0, len(s.objects)),
	}
	if s.local != nil {
		l := *s.local
		snap.Local = &l
	}
	for _, e := range s.players {
		snap.Players = append(snap.Players, *e)
	}
	for _, e := range s.objects {
		snap.Objects = append(snap.Objects, *e)
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	sort.Slice(snap.Objects, func(i, j int) bool { return snap.Objects[i].ID < snap.Objects[j].ID })
	return snap
}

func lessRef(a, b Ref) bool {
	if a.NS != b.NS {
		return a.NS < b.NS
	}
	return a.ID < b.ID
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return lessRef(refs[i], refs[j]) })
}
