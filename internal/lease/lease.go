// Package lease provides the fleet-wide mutual exclusion primitive gating
// periodic sweeps. Acquire never blocks: a held lease means some other runner
// owns this cycle and the caller silently skips. The TTL is the correctness
// backstop: a runner that crashes mid-sweep self-heals after at most one TTL.
package lease

import "time"

type Store interface {
	// Acquire returns false immediately if the key is already held.
	Acquire(key string, ttl time.Duration) bool
	// Release drops the key if this store still holds it. Failures are
	// swallowed by callers; an expired lease releasing is not an error.
	Release(key string)
}
