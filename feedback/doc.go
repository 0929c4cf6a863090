// Package feedback implements the two online learning loops that consume
// retrieval feedback events.
//
// The BackgroundLoop buffers recorded trajectories in a capped ring and
// periodically distills the recent, high-quality ones into patterns,
// merging into existing similar patterns instead of duplicating them.
//
// The InstantLoop reacts to individual feedback events immediately by
// maintaining small multiplicative boosts keyed by approximate vector
// identity. Boosts drift back to neutral through ApplyDecay and are used
// to re-rank search results between background cycles.
package feedback
