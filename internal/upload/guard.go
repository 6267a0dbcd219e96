package upload

import "sync/atomic"

// guard is a fail-fast mutual exclusion flag. It never blocks and never
// queues: a caller that cannot enter is rejected on the spot.
type guard struct {
	busy atomic.Bool
}

func (g *guard) tryEnter() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *guard) exit() {
	g.busy.Store(false)
}
