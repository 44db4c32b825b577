package multiarena

// PoolMetrics is a point-in-time snapshot of a pool's occupancy.
type PoolMetrics struct {
	NumArenas      int     // arena count fixed at construction
	ArenaSize      int     // bytes per arena
	Capacity       int     // NumArenas * ArenaSize
	NumAllocations int     // live allocations across all arenas
	NumBusyArenas  int     // arenas off the free list, as NumBusyArenas reports
	FreeArenas     int     // arenas on the free list
	Utilization    float64 // busy to total arena ratio (0.0-1.0)
}

func (e *unsyncEngine) metrics() PoolMetrics {
	m := PoolMetrics{
		NumArenas:      e.numArenas,
		ArenaSize:      e.arenaSize,
		Capacity:       e.numArenas * e.arenaSize,
		NumAllocations: e.numAllocations(),
		NumBusyArenas:  e.numBusyArenas(),
		FreeArenas:     e.freeHead,
	}
	m.Utilization = float64(m.NumBusyArenas) / float64(m.NumArenas)
	return m
}

func (e *safeEngine) metrics() PoolMetrics {
	m := PoolMetrics{
		NumArenas:      e.numArenas,
		ArenaSize:      e.arenaSize,
		Capacity:       e.numArenas * e.arenaSize,
		NumAllocations: e.numAllocations(),
		NumBusyArenas:  e.numBusyArenas(),
	}
	e.mu.Lock()
	m.FreeArenas = e.freeHead
	e.mu.Unlock()
	m.Utilization = float64(m.NumBusyArenas) / float64(m.NumArenas)
	return m
}

// Metrics returns a snapshot of the pool's occupancy.
func (p *Pool) Metrics() PoolMetrics {
	p.engine.checkLive()
	return p.engine.metrics()
}

// Metrics returns a snapshot of the pool's occupancy. The fields are
// sampled one at a time, so a snapshot taken under concurrent use is
// internally consistent only per field.
func (s *SafePool) Metrics() PoolMetrics {
	s.engine.checkLive()
	return s.engine.metrics()
}

// Metrics returns a snapshot of the pool's occupancy.
func (f *FixedPool[A]) Metrics() PoolMetrics {
	f.engine.checkLive()
	return f.engine.metrics()
}

// Metrics returns a snapshot of the pool's occupancy. See SafePool.Metrics.
func (s *SafeFixedPool[A]) Metrics() PoolMetrics {
	s.engine.checkLive()
	return s.engine.metrics()
}

// Metrics returns a snapshot of the wrapped pool's occupancy.
func (t *StatsPool) Metrics() PoolMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base.Metrics()
}
