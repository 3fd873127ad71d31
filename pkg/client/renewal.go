package client

import "sync"

type renewResult struct {
	accessToken string
	err         error
}

// renewalGroup guarantees at most one in-flight refresh call. The cell is
// either idle or pending-with-waiters; callers that arrive while a renewal is
// pending park on a channel and are resolved or rejected as a batch when the
// leader settles.
type renewalGroup struct {
	mu      sync.Mutex
	pending bool
	waiters []chan renewResult
}

// join makes the caller the leader when the cell is idle. Non-leaders get a
// channel that yields the leader's outcome.
func (g *renewalGroup) join() (leader bool, wait <-chan renewResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending {
		ch := make(chan renewResult, 1)
		g.waiters = append(g.waiters, ch)
		return false, ch
	}

	g.pending = true
	return true, nil
}

// settle publishes the leader's outcome to every parked waiter and resets the
// cell to idle.
func (g *renewalGroup) settle(res renewResult) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.pending = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
}
