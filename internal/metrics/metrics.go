package metrics

import "sync/atomic"

// Counters tracks engine activity across sweeps. Values are cumulative since
// process start and safe to bump from worker goroutines.
type Counters struct {
	SweepsRun           uint64
	SweepsSkipped       uint64
	RetriesAttempted    uint64
	RetriesSucceeded    uint64
	TransactionsSettled uint64
	TransactionsFailed  uint64
	DocumentsRendered   uint64
}

func (c *Counters) IncSweepsRun()        { atomic.AddUint64(&c.SweepsRun, 1) }
func (c *Counters) IncSweepsSkipped()    { atomic.AddUint64(&c.SweepsSkipped, 1) }
func (c *Counters) IncRetriesAttempted() { atomic.AddUint64(&c.RetriesAttempted, 1) }
func (c *Counters) IncRetriesSucceeded() { atomic.AddUint64(&c.RetriesSucceeded, 1) }
func (c *Counters) IncSettled()          { atomic.AddUint64(&c.TransactionsSettled, 1) }
func (c *Counters) IncFailed()           { atomic.AddUint64(&c.TransactionsFailed, 1) }
func (c *Counters) IncRendered()         { atomic.AddUint64(&c.DocumentsRendered, 1) }

func (c *Counters) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"sweeps_run":           atomic.LoadUint64(&c.SweepsRun),
		"sweeps_skipped":       atomic.LoadUint64(&c.SweepsSkipped),
		"retries_attempted":    atomic.LoadUint64(&c.RetriesAttempted),
		"retries_succeeded":    atomic.LoadUint64(&c.RetriesSucceeded),
		"transactions_settled": atomic.LoadUint64(&c.TransactionsSettled),
		"transactions_failed":  atomic.LoadUint64(&c.TransactionsFailed),
		"documents_rendered":   atomic.LoadUint64(&c.DocumentsRendered),
	}
}
