// Package stm implements a word-granularity software transactional
// memory runtime: commit-time locking (CTL), TL2-style time-based read
// validation, and a closure-retry transaction lifecycle.
package stm
