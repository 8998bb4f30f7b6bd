// Package cache implements the two-tier cache used in front of downstream
// services: a bounded in-process LRU (LocalCache), a Redis-backed remote tier
// (DistributedCache over RedisStore) and the MultiLevelCache that composes
// them with read-repair and write-through or write-behind propagation.
//
// The remote tier is an optimisation. Its failures are logged and surface as
// misses or no-ops, never as errors from MultiLevelCache.Get, Set or Del.
package cache
