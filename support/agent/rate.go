package agent

import (
	"math"
	"math/rand"
)

// RateIterator simulates events arriving as a Poisson process with a given mean rate per tick.
type RateIterator struct {
	rnd  *rand.Rand
	rate float64
	// Ticks remaining until the next event.
	next float64
}

func NewRateIterator(rate float64, seed int64) *RateIterator {
	ri := &RateIterator{
		rnd:  rand.New(rand.NewSource(seed)),
		rate: rate,
		next: 1.0,
	}
	ri.scheduleNext() // randomize first occurrence
	return ri
}

// Tick calls f once for each event landing in this tick.
// f runs rate times per tick on average, but may run zero or many times in any one tick.
func (ri *RateIterator) Tick(f func() error) error {
	if ri.rate <= 0 {
		return nil
	}
	ri.next -= 1.0
	for ri.next < 1.0 {
		if err := f(); err != nil {
			return err
		}
		ri.scheduleNext()
	}
	return nil
}

// Exponentially distributed gap to the next event.
func (ri *RateIterator) scheduleNext() {
	if ri.rate <= 0 {
		return
	}
	ri.next += -math.Log(1-ri.rnd.Float64()) / ri.rate
}
