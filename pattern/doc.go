// Package pattern turns high-quality retrieval samples into clusters of
// reusable patterns and keeps that knowledge from being destroyed by later
// learning.
//
// Three pieces work together:
//
//   - Store accepts samples above a quality threshold and groups them into
//     centroid clusters via greedy nearest-centroid assignment.
//   - Engine is the EWC-style consolidation core: it tracks per-pattern
//     Fisher information (an exponentially decayed diagonal approximation of
//     importance), computes update penalties, and merges/prunes pattern sets
//     while preserving explicitly protected patterns.
//   - Loop owns a working pattern set plus an embedded Engine and runs deep
//     consolidation on a periodic tick, with JSON file export/import and an
//     optional durable snapshot store (Postgres implementation provided).
//
// # Example
//
//	store := pattern.NewStore(&pattern.StoreConfig{QualityThreshold: 0.5})
//	store.AddSample(&sona.PatternSample{
//		QueryVector:    qv,
//		ResultVector:   rv,
//		RelevanceScore: 0.9,
//	})
//
//	loop := pattern.NewLoop(&pattern.LoopConfig{IntervalMs: 60000})
//	loop.AddPatterns(store.Clusters())
//	loop.Start()
//	defer loop.Stop()
//
// Protecting critical patterns from merge and prune:
//
//	loop.Engine().ProtectCritical([]string{"p1"}, "user-pinned", 1.0)
package pattern // import "github.com/smallnest/sona/pattern"
