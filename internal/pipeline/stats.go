package pipeline

import "time"

// RunStats tracks aggregate counters and byte totals for one split or a
// whole run.
type RunStats struct {
	Total   int // catalog entries
	Written int
	Skipped int
	Shards  int
	Bytes   int64 // shard bytes on disk
	Elapsed time.Duration
}

// Add accumulates o into s.
func (s *RunStats) Add(o RunStats) {
	s.Total += o.Total
	s.Written += o.Written
	s.Skipped += o.Skipped
	s.Shards += o.Shards
	s.Bytes += o.Bytes
	s.Elapsed += o.Elapsed
}

// Processed is the number of catalog entries that were written or skipped.
func (s *RunStats) Processed() int {
	return s.Written + s.Skipped
}
