// Package cache memoizes streamed completions on disk.
//
// A [Deriver] turns an operation identity and its call arguments into a
// [Key]. A [DiskStore] keeps one JSON record per key and publishes writes by
// renaming a synced temp file into place, so an entry is either complete or
// absent. [EnforceCapacity] bounds the store with least-recently-used
// eviction, and a [Memoizer] ties the three together: it replays stored
// chunks on a hit and tees live chunks into the store on a miss, committing
// only after the wrapped sequence finishes cleanly.
//
// Several processes may share one cache directory. Writes are last writer
// wins. Eviction and access updates are serialized with an advisory lock
// where the platform supports flock.
package cache
