// Package embedder provides implementations of the sona.Embedder
// interface: a deterministic mock for tests and offline use, an OpenAI
// client, and an adapter for langchaingo embedders.
package embedder
