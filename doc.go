// SONA - Self-Learning Vector Memory Engine for Go
//
// SONA turns raw query/result interactions of an AI agent into reusable
// knowledge: it records retrieval trajectories, mines clusters of successful
// retrieval patterns, protects valuable patterns from being overwritten by
// later learning (EWC-style consolidation), and feeds the learned patterns
// back into retrieval through score boosts, re-ranking and graph-attention
// context aggregation.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/sona
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/sona"
//		"github.com/smallnest/sona/backend"
//		"github.com/smallnest/sona/embedder"
//		"github.com/smallnest/sona/engine"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		mem := engine.NewMemory(&engine.Config{
//			Backend:  backend.NewInMemoryBackend(),
//			Embedder: embedder.NewMockEmbedder(128),
//		})
//		mem.Start()
//		defer mem.Stop()
//
//		// Record a query and its retrieval results.
//		id, _ := mem.RecordQuery(ctx, "how do I rotate the API key?",
//			[]sona.SearchResult{
//				{Entry: &sona.VectorEntry{ID: "doc-1"}, Score: 0.92},
//				{Entry: &sona.VectorEntry{ID: "doc-2"}, Score: 0.71},
//			})
//
//		// Later, feed back how useful the results were.
//		mem.AddFeedback(id, 0.9)
//
//		fmt.Println(mem.GetStats())
//	}
//
// # Key Components
//
//   - Trajectory Store: append-only, capacity-bounded log of
//     (query vector, results, feedback) with feedback-aware pruning
//   - Pattern Store: online similarity clustering of high-quality samples
//   - Consolidation Engine: Fisher-information weighted merge/prune with
//     protected-pattern preservation
//   - Feedback Loops: a buffered background miner and an instantaneous
//     boost learner with time decay
//   - Relationship Layer: entity extraction, edge inference and multi-head
//     graph attention for context aggregation
//
// # Package Structure
//
//   - sona: shared data model, vector math and external interfaces
//   - sona/trajectory: trajectory store and SQLite archive
//   - sona/pattern: pattern store, consolidation engine and loop
//   - sona/feedback: background and instant feedback loops
//   - sona/relationship: entity inference and graph attention
//   - sona/backend: in-memory and FalkorDB vector/graph backends
//   - sona/embedder: mock, OpenAI and LangChain embedders
//   - sona/engine: orchestrator facade composing the components
//   - sona/log: logging abstraction with golog support
package sona // import "github.com/smallnest/sona"
