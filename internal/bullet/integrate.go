package bullet

import "golang.org/x/sync/errgroup"

// integrate advances every live slot by one tick. With Workers > 1 and
// enough live bullets the dense list is split into contiguous chunks; each
// slot only writes its own columns so the chunks need no locking.
func (p *Pool) integrate() {
	live := p.arena.live
	workers := p.cfg.Workers
	if workers <= 1 || len(live) < p.cfg.ParallelThreshold {
		p.arena.integrate(live)
		return
	}

	chunk := (len(live) + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < len(live); start += chunk {
		part := live[start:min(start+chunk, len(live))]
		g.Go(func() error {
			p.arena.integrate(part)
			return nil
		})
	}
	_ = g.Wait() // chunks never fail
}
