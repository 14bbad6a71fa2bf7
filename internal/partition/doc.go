// Package partition splits a catalog of N entries into contiguous worker
// ranges and splits each worker range into contiguous shard assignments.
//
// Boundaries are computed by linear spacing in floating point and then
// truncated to integers, so ranges differ in length by at most one and
// always tile [0, N) exactly in worker order.
package partition
