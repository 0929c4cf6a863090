// Package engine composes the trajectory store, pattern learning, both
// feedback loops and the relationship layer behind a single Memory facade.
// Hosts record queries and feedback through it and get reranking, graph
// context and content ingestion back.
package engine
