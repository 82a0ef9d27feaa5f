package main

import (
	"math/rand"
	"time"

	"agarclient/internal/sim/predict"
)

// wanderer picks a new random heading every few seconds, occasionally
// standing still.
type wanderer struct {
	r    *rand.Rand
	next time.Time
}

func newWanderer(seed int64) *wanderer {
	return &wanderer{r: rand.New(rand.NewSource(seed))}
}

// step returns the intent to apply at now, and false while the current one
// should be kept.
func (w *wanderer) step(now time.Time) (predict.Intent, bool) {
	if now.Before(w.next) {
		return predict.Intent{}, false
	}
	w.next = now.Add(time.Second + time.Duration(w.r.Intn(2000))*time.Millisecond)
	if w.r.Intn(8) == 0 {
		return predict.Intent{}, true
	}
	var in predict.Intent
	switch w.r.Intn(3) {
	case 0:
		in.Up = true
	case 1:
		in.Down = true
	}
	switch w.r.Intn(3) {
	case 0:
		in.Left = true
	case 1:
		in.Right = true
	}
	if in == (predict.Intent{}) {
		in.Right = true
	}
	return in, true
}
