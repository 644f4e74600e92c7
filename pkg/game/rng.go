package game

import (
	"math/rand/v2"
	"sync"
)

// RNG is the randomness source for deck shuffles. *rand.Rand satisfies it,
// but is not goroutine-safe; a source shared between the clock workers and
// request handlers must be wrapped with LockRNG.
type RNG interface {
	Shuffle(n int, swap func(i, j int))
}

// LockRNG wraps rng so concurrent shuffles are serialised.
func LockRNG(rng *rand.Rand) RNG {
	return &lockedRNG{rng: rng}
}

type lockedRNG struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRNG) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng.Shuffle(n, swap)
}
