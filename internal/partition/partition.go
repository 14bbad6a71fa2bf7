package partition

import (
	"errors"
	"fmt"
)

// ErrConfig is returned when the shard count cannot be divided evenly
// among the workers, or when either count is not positive.
var ErrConfig = errors.New("invalid shard/worker configuration")

// Range is a half-open index range [Start, End) over the shuffled catalog.
type Range struct {
	Start int
	End   int
}

// Len returns the number of catalog entries in the range.
func (r Range) Len() int { return r.End - r.Start }

// Assignment is one shard's sub-range of a worker Range.
type Assignment struct {
	Shard int
	Start int
	End   int
}

// Len returns the number of catalog entries assigned to the shard.
func (a Assignment) Len() int { return a.End - a.Start }

// Validate checks that shards can be split evenly among workers.
func Validate(shards, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("%w: worker count must be positive (got %d)", ErrConfig, workers)
	}
	if shards <= 0 {
		return fmt.Errorf("%w: shard count must be positive (got %d)", ErrConfig, shards)
	}
	if shards%workers != 0 {
		return fmt.Errorf("%w: %d shards cannot be split evenly across %d workers", ErrConfig, shards, workers)
	}
	return nil
}

// Linspace returns num+1 breakpoints evenly spaced over [start, stop],
// truncated to integers. The first breakpoint is start and the last is
// exactly stop.
func Linspace(start, stop, num int) []int {
	if num <= 0 {
		return []int{start}
	}
	out := make([]int, num+1)
	step := float64(stop-start) / float64(num)
	for i := 0; i < num; i++ {
		out[i] = int(float64(start) + float64(i)*step)
	}
	out[num] = stop
	return out
}

// Partition splits [0, n) into workers consecutive ranges. When n is
// smaller than workers some ranges are empty.
func Partition(n, workers int) []Range {
	if workers <= 0 {
		return nil
	}
	bp := Linspace(0, n, workers)
	ranges := make([]Range, workers)
	for i := range ranges {
		ranges[i] = Range{Start: bp[i], End: bp[i+1]}
	}
	return ranges
}

// Subdivide splits the range owned by worker into shards/workers shard
// assignments. Shard IDs are worker*shardsPerWorker + local index.
func Subdivide(r Range, worker, shards, workers int) ([]Assignment, error) {
	if err := Validate(shards, workers); err != nil {
		return nil, err
	}
	if worker < 0 || worker >= workers {
		return nil, fmt.Errorf("%w: worker index %d out of range [0, %d)", ErrConfig, worker, workers)
	}
	perWorker := shards / workers
	bp := Linspace(r.Start, r.End, perWorker)
	out := make([]Assignment, perWorker)
	for s := range out {
		out[s] = Assignment{
			Shard: worker*perWorker + s,
			Start: bp[s],
			End:   bp[s+1],
		}
	}
	return out, nil
}

// Plan returns every worker's shard assignments for a catalog of n
// entries, indexed by worker.
func Plan(n, shards, workers int) ([][]Assignment, error) {
	if err := Validate(shards, workers); err != nil {
		return nil, err
	}
	ranges := Partition(n, workers)
	plan := make([][]Assignment, workers)
	for w, r := range ranges {
		a, err := Subdivide(r, w, shards, workers)
		if err != nil {
			return nil, err
		}
		plan[w] = a
	}
	return plan, nil
}
