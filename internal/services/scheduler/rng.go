package scheduler

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// rngFor derives a deterministic RNG from the simulation seed and a set of
// scope keys. Same seed and keys always produce the same stream, which keeps
// funding variance, market events and simulated votes reproducible.
func rngFor(seed int64, keys ...any) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d", seed)
	for _, k := range keys {
		fmt.Fprintf(h, "|%v", k)
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
