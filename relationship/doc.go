// Package relationship builds and consumes the graph layer on top of the
// vector backend.
//
// The Inferrer extracts entities from stored content with lightweight
// regex heuristics, proposes edges between co-occurring entities, and
// links near-duplicate entries with SIMILAR_TO edges.
//
// Attention aggregates neighbor embeddings into a context vector using
// multi-head graph attention over a breadth-first neighborhood, with
// per-head relationship filters and dot-product or additive scoring.
package relationship
