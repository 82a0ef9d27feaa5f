package world

import "math"

// Step extrapolates a position along angle for elapsedMs milliseconds.
func Step(x, y, angle, coef float32, elapsedMs float64) (float32, float32) {
	d := float64(coef) * elapsedMs
	return x + float32(math.Cos(float64(angle))*d), y + float32(math.Sin(float64(angle))*d)
}

// clampLocked keeps a position inside the map. A zero map size means the
// bounds are not known yet and only the lower bound applies.
func (s *Store) clampLocked(x, y float32) (float32, float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if s.mapW > 0 && x > s.mapW {
		x = s.mapW
	}
	if s.mapH > 0 && y > s.mapH {
		y = s.mapH
	}
	return x, y
}

// AdvanceLocal dead-reckons the local player if it is moving and alive. It
// returns the updated local player.
func (s *Store) AdvanceLocal(elapsedMs float64) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return Entity{}, false
	}
	if s.local.Moving && !s.dead && elapsedMs > 0 {
		x, y := Step(s.local.X, s.local.Y, s.local.Angle, s.local.MoveCoef, elapsedMs)
		x, y = s.clampLocked(x, y)
		s.moveLocked(s.local, x, y)
	}
	return *s.local, true
}

// AdvanceRemote dead-reckons every moving remote player with its last known
// angle and coefficient. Players carried out of the active window are
// evicted; the number evicted is returned.
func (s *Store) AdvanceRemote(elapsedMs float64) int {
	if elapsedMs <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	moving := make([]*Entity, 0, len(s.players))
	for _, e := range s.players {
		if e.Moving {
			moving = append(moving, e)
		}
	}
	evicted := 0
	for _, e := range moving {
		x, y := Step(e.X, e.Y, e.Angle, e.MoveCoef, elapsedMs)
		x, y = s.clampLocked(x, y)
		if !s.moveLocked(e, x, y) {
			evicted++
		}
	}
	return evicted
}
