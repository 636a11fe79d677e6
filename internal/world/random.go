package world

import (
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue folds a root seed string and a subsystem label
// into a stable 64-bit seed. Distinct labels drawing from the same root
// produce independent streams without any ordering coupling between
// subsystems.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}
