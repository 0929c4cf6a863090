// Package backend provides implementations of the engine's storage
// contracts.
//
// InMemoryBackend keeps vectors and edges in process memory and is the
// default for tests and small deployments. RedisVectorStore persists
// entries in Redis with client-side similarity scoring. FalkorDBGraph
// talks to a FalkorDB graph over the Redis protocol. Composite glues an
// independent vector store and graph store into the combined Backend
// interface.
package backend
