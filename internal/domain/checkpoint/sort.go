package checkpoint

import (
	"sort"
	"strconv"
)

// SortByPartition orders checkpoints numerically when partition ids are
// numbers, lexically otherwise.
func SortByPartition(cps []Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		a, errA := strconv.Atoi(cps[i].Partition)
		b, errB := strconv.Atoi(cps[j].Partition)
		if errA == nil && errB == nil {
			return a < b
		}
		return cps[i].Partition < cps[j].Partition
	})
}
