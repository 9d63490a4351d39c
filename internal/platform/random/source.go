package random

import (
	"math/rand/v2"
	"sync"
)

// Global draws from the shared math/rand/v2 generator. Safe for
// concurrent use and good enough for coin draws; the pool split does not
// need to be unpredictable to an adversary.
type Global struct{}

func NewGlobal() Global {
	return Global{}
}

func (Global) IntN(n int) int {
	return rand.IntN(n)
}

// Seeded is a deterministic, mutex-guarded source for tests.
type Seeded struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewSeeded(seed uint64) *Seeded {
	return &Seeded{r: rand.New(rand.NewPCG(seed, seed<<1|1))}
}

func (s *Seeded) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}
