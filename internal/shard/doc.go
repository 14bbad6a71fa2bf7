// Package shard writes one output shard: it walks a contiguous range of
// the catalog in order, pairs every image with its mask, validates both,
// and appends one record per successful pair.
//
// Per-file failures (unresolvable mask name, unreadable or undecodable
// image or mask) are logged and skipped; they never abort the shard. A
// shard is written to a temporary file in the output directory and renamed
// into place only after it has been flushed and synced, so a shard file
// that exists is always complete.
package shard
