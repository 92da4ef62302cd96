package engine

import "sync"

// requestCoalescer collapses concurrent identical backend calls onto one
// in-flight run per key. A caller that arrives mid-flight marks the flight
// for replay and awaits the current result; the initiating caller then runs
// exactly one extra pass per marked flight before releasing the key, so no
// reload request is dropped and no more than one extra pass is ever queued.
type requestCoalescer struct {
	mu      sync.Mutex
	flights map[string]*coalescedFlight
}

type coalescedFlight struct {
	done   chan struct{}
	err    error
	replay bool
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{flights: map[string]*coalescedFlight{}}
}

func (c *requestCoalescer) Do(key string, fn func() error) error {
	c.mu.Lock()
	if flight, ok := c.flights[key]; ok {
		flight.replay = true
		c.mu.Unlock()
		<-flight.done
		return flight.err
	}
	flight := &coalescedFlight{done: make(chan struct{})}
	c.flights[key] = flight
	c.mu.Unlock()

	err := fn()
	for {
		c.mu.Lock()
		if !flight.replay {
			flight.err = err
			delete(c.flights, key)
			c.mu.Unlock()
			close(flight.done)
			return err
		}
		flight.replay = false
		c.mu.Unlock()
		err = fn()
	}
}

// InFlight reports whether a call for key is currently running.
func (c *requestCoalescer) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flights[key]
	return ok
}
