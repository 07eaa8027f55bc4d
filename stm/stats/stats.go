// Package stats exposes the engine's counters both as a Prometheus
// surface and as a plain snapshot accessor for callers that just want
// a number back.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters tracks commit/abort/rollover activity for one World. Each
// World owns its own Counters, registered against a prometheus.Registry
// of its own only when one is supplied, so that multiple Worlds (e.g.
// one per test) never collide on metric names.
type Counters struct {
	commits   atomic.Uint64
	rollovers atomic.Uint64
	aborts    [numReasons]atomic.Uint64
	readSize  atomic.Uint64
	writeSize atomic.Uint64

	promCommits   prometheus.Counter
	promRollovers prometheus.Counter
	promAborts    *prometheus.CounterVec
	promReadSet   prometheus.Histogram
	promWriteSet  prometheus.Histogram
}

// reasons mirrors stm.AbortReason's ordinal values without importing
// the stm package (stats must not depend on stm, since stm depends on
// stats). Callers pass the reason's String() label.
const numReasons = 8

var reasonIndex = map[string]int{
	"NONE":        0,
	"VAL_READ":    1,
	"VAL_WRITE":   2,
	"WW_CONFLICT": 3,
	"VALIDATE":    4,
	"RO_WRITE":    5,
	"EXPLICIT":    6,
	"KILLED":      7,
}

// New builds a Counters and registers its Prometheus collectors
// against reg. Passing nil skips Prometheus registration entirely
// (useful for short-lived benchmark Worlds in tests).
func New(reg *prometheus.Registry) *Counters {
	c := &Counters{
		promCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stm_commits_total",
			Help: "Transactions that committed successfully.",
		}),
		promRollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stm_clock_rollovers_total",
			Help: "Global clock rollover barriers executed.",
		}),
		promAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stm_aborts_total",
			Help: "Transactions aborted, labeled by reason.",
		}, []string{"reason"}),
		promReadSet: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stm_commit_read_set_size",
			Help:    "Read-set size observed at successful commit.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		promWriteSet: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stm_commit_write_set_size",
			Help:    "Write-set size observed at successful commit.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.promCommits, c.promRollovers, c.promAborts, c.promReadSet, c.promWriteSet)
	}
	return c
}

// RecordCommit accounts for a successful commit with the given final
// read-set and write-set sizes.
func (c *Counters) RecordCommit(readSetSize, writeSetSize int) {
	c.commits.Add(1)
	c.readSize.Store(uint64(readSetSize))
	c.writeSize.Store(uint64(writeSetSize))
	c.promCommits.Inc()
	c.promReadSet.Observe(float64(readSetSize))
	c.promWriteSet.Observe(float64(writeSetSize))
}

// RecordAbort accounts for an abort labeled by reason's String() form.
func (c *Counters) RecordAbort(reason string) {
	if idx, ok := reasonIndex[reason]; ok {
		c.aborts[idx].Add(1)
	}
	c.promAborts.WithLabelValues(reason).Inc()
}

// RecordRollover accounts for one clock-rollover barrier.
func (c *Counters) RecordRollover() {
	c.rollovers.Add(1)
	c.promRollovers.Inc()
}

// Get looks up a named counter, reporting false if name is unknown.
func (c *Counters) Get(name string) (uint64, bool) {
	switch name {
	case "commits":
		return c.commits.Load(), true
	case "rollovers":
		return c.rollovers.Load(), true
	case "read_set_size":
		return c.readSize.Load(), true
	case "write_set_size":
		return c.writeSize.Load(), true
	}
	if idx, ok := reasonIndex[name]; ok {
		return c.aborts[idx].Load(), true
	}
	return 0, false
}
