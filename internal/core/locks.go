package core

import (
	"hash/fnv"
	"sync"
)

// lockTable serializes resolution cycles that contend on the same alias key.
// Without it, two concurrent candidates with the same wording could both see
// "no match" and create duplicate entities. Striping keeps unrelated
// candidates fully parallel.
type lockTable struct {
	stripes [64]sync.Mutex
}

func (t *lockTable) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &t.stripes[h.Sum32()%uint32(len(t.stripes))]
	mu.Lock()
	return mu.Unlock
}
