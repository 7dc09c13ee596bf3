package casseq

import "strings"

const lockSuffix = "/lock"

// counterPaths derives the counter cell path and its promotion lock path
// from a namespace: strip every leading and trailing separator, prefix
// exactly one. "orders", "/orders" and "orders/" all address the same
// counter. The empty namespace degenerates to "/" and is still valid.
func counterPaths(namespace string) (pathID, pathLock string) {
	pathID = "/" + strings.Trim(namespace, "/")
	return pathID, pathID + lockSuffix
}
