// Package treesync keeps the on-disk storage tree and the in-memory
// hierarchical cache consistent under cache-aside reads. A Synchronizer owns
// exactly one treecache.Cache for its lifetime: reads consult the cache
// first, fall back to a recursive disk walk on a miss, and repopulate the
// cache with the walk's result. Bootstrap eagerly materializes the whole
// storage root once at startup and seeds the cache with it, pinned.
//
// Concurrent misses on the same path are not coalesced: both callers walk
// the disk and the last writer wins. This mirrors the lack of locking in the
// cache's nested branches and is a documented trade-off, not a guarantee.
package treesync
