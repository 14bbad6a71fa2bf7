// Package pipeline coordinates a run: for each dataset split it builds the
// catalog, plans the shard assignments, fans out one goroutine per worker,
// and fans their results back in for the summary and the manifest.
//
// Workers share only the read-only catalog and the output directory; each
// owns a disjoint set of shard files and its own codec and counters, so no
// locking is needed between them. Output is byte-for-byte reproducible for
// identical inputs and configuration.
package pipeline
