// Package trajectory implements the append-only, capacity-bounded log of
// query/result interactions that feeds the learning loops.
//
// A trajectory is one recorded query, the ids and scores of the results that
// were retrieved for it, and optional feedback added later. When the store
// grows past its capacity it prunes itself down to 90% of the maximum,
// preferring to drop trajectories without feedback (oldest first) and only
// touching feedback-bearing trajectories when still over target.
//
// # Example
//
//	store := trajectory.NewStore(&trajectory.Config{MaxTrajectories: 500})
//
//	id, _ := store.Record(&trajectory.RecordInput{
//		Query:        "rotate api key",
//		QueryVector:  vec,
//		ResultIDs:    []string{"doc-1"},
//		ResultScores: []float64{0.92},
//	})
//
//	store.AddFeedback(id, 0.9)
//
//	recent := store.GetRecent(&trajectory.RecentOptions{Limit: 10})
//	similar := store.FindSimilar(vec, 5, 0.7)
//
// The store is safe for concurrent use. Read operations never mutate state.
package trajectory // import "github.com/smallnest/sona/trajectory"
