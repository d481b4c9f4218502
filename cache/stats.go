package cache

// Stats are the lookup and eviction counts of a cache.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// Loads counts values inserted by GetOrLoad after a miss.
	Loads uint64
}

// HitRate returns Hits / (Hits + Misses), or 0 if there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Add returns the sum of s and other.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Hits:      s.Hits + other.Hits,
		Misses:    s.Misses + other.Misses,
		Evictions: s.Evictions + other.Evictions,
		Loads:     s.Loads + other.Loads,
	}
}
