// Package retention implements the serving-cache mode's disk bound: an LRU
// over item artifact directories whose eviction deletes the directory.
package retention
