package badger

import (
	"fmt"
	"strings"
)

// Key prefixes for different data types
const (
	itemPrefix       = "item:"
	featurePrefix    = "feat:"
	pendingPrefix    = "pend:"
	colorMapPrefix   = "cmap:"
	colorMapGenKey   = "cmap:gen"
	checkpointPrefix = "chkpt:"
	lockPrefix       = "lock:"
)

// makeItemKey generates a key for a catalog item by SKU.
func makeItemKey(sku string) []byte {
	return []byte(itemPrefix + sku)
}

// makeFeatureKey generates a key for a feature row by SKU.
func makeFeatureKey(sku string) []byte {
	return []byte(featurePrefix + sku)
}

// makePendingKey generates a key in the pending-embeddings index.
// Keys sort by SKU, which makes the index cursor-pageable.
func makePendingKey(sku string) []byte {
	return []byte(pendingPrefix + sku)
}

// skuFromKey strips prefix from key.
func skuFromKey(key []byte, prefix string) string {
	return strings.TrimPrefix(string(key), prefix)
}

// makeColorMapPrefix generates the key prefix of one color mapping generation.
// Format: cmap:generation:
func makeColorMapPrefix(generation uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:", colorMapPrefix, generation))
}

// makeColorMapKey generates a key for one source color in a generation.
// Format: cmap:generation:source
func makeColorMapKey(generation uint64, source string) []byte {
	return append(makeColorMapPrefix(generation), source...)
}

// makeCheckpointKey generates a key for job checkpoints.
func makeCheckpointKey(job string) []byte {
	return []byte(checkpointPrefix + job)
}

// makeLockKey generates a key for a named lock.
func makeLockKey(name string) []byte {
	return []byte(lockPrefix + name)
}
