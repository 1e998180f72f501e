// Package treecache implements the in-memory hierarchical cache that fronts
// the on-disk storage tree. The cache is itself a tree: values are addressed
// by separator-delimited paths, intermediate branches are created on demand,
// and each top-level set may schedule a one-shot TTL expiry for the exact key
// it wrote. Reads walk a shallow top-level snapshot of the root, so a miss is
// signalled with ErrNotFound rather than treated as an exceptional condition.
// The tree synchronizer depends on this package to answer reads without
// touching disk and to absorb the results of cache-aside fallbacks.
package treecache
