package shard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// Name returns the file name of a shard, e.g. "train-00002-of-00010".
func Name(dataset string, shard, total int) string {
	return fmt.Sprintf("%s-%05d-of-%05d", dataset, shard, total)
}

// Path joins the output directory and [Name].
func Path(outputDir, dataset string, shard, total int) string {
	return filepath.Join(outputDir, Name(dataset, shard, total))
}

var reName = regexp.MustCompile(`^(.+)-(\d{5,})-of-(\d{5,})$`)

// ParseName splits a shard file name into its dataset, shard ID and
// total. ok is false for names that are not shard names.
func ParseName(name string) (dataset string, shard, total int, ok bool) {
	m := reName.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	shard, err1 := strconv.Atoi(m[2])
	total, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || shard >= total {
		return "", 0, 0, false
	}
	return m[1], shard, total, true
}
