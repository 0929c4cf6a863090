package relationship

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// Attention scoring functions.
const (
	AttentionDot      = "dot"
	AttentionAdditive = "additive"
)

// Head is one named attention head. An empty RelationshipTypes list matches
// every edge.
type Head struct {
	Name              string   `json:"name"`
	RelationshipTypes []string `json:"relationship_types,omitempty"`
	Weight            float64  `json:"weight"`
	AttentionType     string   `json:"attention_type"`
}

// AttentionConfig holds configuration for the multi-head aggregator
type AttentionConfig struct {
	InputDim    int     // Embedding dimension, required
	HiddenDim   int     // Per-head hidden size, default InputDim/4
	Heads       []Head  // Default: a single unfiltered dot-product head
	Temperature float64 // Scales attention scores before softmax, default 1.0
	Dropout     float64 // Probability of zeroing an attention weight, default 0
	Normalize   bool    // L2-normalize the final context vector
	Logger      log.Logger
}

// AttentionResult is the outcome of one context aggregation. Attention
// weight vectors are aligned with ContributingNodes; a head that never
// reached a node carries 0 at its position.
type AttentionResult struct {
	ContextVector     []float32            `json:"context_vector"`
	Depth             int                  `json:"depth"`
	ContributingNodes []string             `json:"contributing_nodes"`
	AttentionWeights  map[string][]float64 `json:"attention_weights"`
}

// Attention aggregates neighbor embeddings into a context vector using
// multi-head attention over a breadth-first neighborhood.
type Attention struct {
	inputDim    int
	hiddenDim   int
	heads       []Head
	temperature float64
	dropout     float64
	normalize   bool
	outputDim   int
	rng         *rand.Rand
	rngMu       sync.Mutex
	logger      log.Logger
	mu          sync.RWMutex
}

// NewAttention creates a new multi-head attention aggregator
func NewAttention(config *AttentionConfig) *Attention {
	if config == nil {
		config = &AttentionConfig{}
	}

	inputDim := config.InputDim
	if inputDim <= 0 {
		inputDim = 128
	}
	hiddenDim := config.HiddenDim
	if hiddenDim <= 0 {
		hiddenDim = inputDim / 4
		if hiddenDim == 0 {
			hiddenDim = 1
		}
	}
	temperature := config.Temperature
	if temperature <= 0 {
		temperature = 1.0
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	a := &Attention{
		inputDim:    inputDim,
		hiddenDim:   hiddenDim,
		temperature: temperature,
		dropout:     config.Dropout,
		normalize:   config.Normalize,
		rng:         rand.New(rand.NewSource(1)),
		logger:      logger,
	}

	heads := config.Heads
	if len(heads) == 0 {
		heads = []Head{{Name: "default"}}
	}
	for _, h := range heads {
		a.AddHead(h)
	}
	return a
}

// AddHead adds or replaces a head by name and updates the derived output
// projection size.
func (a *Attention) AddHead(h Head) {
	if h.Name == "" {
		return
	}
	if h.Weight == 0 {
		h.Weight = 1.0
	}
	if h.AttentionType == "" {
		h.AttentionType = AttentionDot
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	replaced := false
	for i := range a.heads {
		if a.heads[i].Name == h.Name {
			a.heads[i] = h
			replaced = true
			break
		}
	}
	if !replaced {
		a.heads = append(a.heads, h)
	}
	a.outputDim = a.hiddenDim * len(a.heads)
}

// RemoveHead removes a head by name and reports whether it existed
func (a *Attention) RemoveHead(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.heads {
		if a.heads[i].Name == name {
			a.heads = append(a.heads[:i], a.heads[i+1:]...)
			a.outputDim = a.hiddenDim * len(a.heads)
			return true
		}
	}
	return false
}

// Heads returns the current head names in order
func (a *Attention) Heads() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.heads))
	for i, h := range a.heads {
		names[i] = h.Name
	}
	return names
}

// OutputDim returns the derived projection size, hidden size times heads
func (a *Attention) OutputDim() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outputDim
}

// AggregateContext walks the graph breadth-first from nodeID up to depth
// hops and blends reached neighbor embeddings into a context vector of the
// input dimension. A missing start node yields a zero vector with depth 0.
// Optional head names restrict which heads participate.
func (a *Attention) AggregateContext(nodeID string, nodes []*sona.GraphNode, edges []sona.GraphEdge, depth int, headNames ...string) *AttentionResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := &AttentionResult{
		ContextVector:     make([]float32, a.inputDim),
		ContributingNodes: []string{},
		AttentionWeights:  make(map[string][]float64),
	}

	nodeIndex := make(map[string]*sona.GraphNode, len(nodes))
	for _, n := range nodes {
		if n != nil {
			nodeIndex[n.ID] = n
		}
	}

	start, ok := nodeIndex[nodeID]
	if !ok || depth <= 0 {
		return result
	}

	heads := a.selectHeads(headNames)
	if len(heads) == 0 {
		return result
	}

	// Per-head BFS, since edge-type filters change reachability.
	type reached struct {
		node *sona.GraphNode
		hops int
	}
	perHead := make(map[string][]reached, len(heads))
	contributing := make([]string, 0)
	seenGlobal := make(map[string]bool)
	maxHops := 0

	for _, h := range heads {
		adjacency := buildAdjacency(edges, h.RelationshipTypes)
		visited := map[string]int{nodeID: 0}
		queue := []string{nodeID}
		var neighbors []reached

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			hops := visited[current]
			if hops >= depth {
				continue
			}
			for _, next := range adjacency[current] {
				if _, ok := visited[next]; ok {
					continue
				}
				visited[next] = hops + 1
				queue = append(queue, next)
				if n, ok := nodeIndex[next]; ok && len(n.Embedding) > 0 {
					neighbors = append(neighbors, reached{node: n, hops: hops + 1})
					if hops+1 > maxHops {
						maxHops = hops + 1
					}
					if !seenGlobal[next] {
						seenGlobal[next] = true
						contributing = append(contributing, next)
					}
				}
			}
		}
		perHead[h.Name] = neighbors
	}

	sort.Strings(contributing)
	result.ContributingNodes = contributing
	result.Depth = maxHops

	position := make(map[string]int, len(contributing))
	for i, id := range contributing {
		position[id] = i
	}

	context := make([]float64, a.inputDim)
	totalHeadWeight := 0.0

	for _, h := range heads {
		weights := make([]float64, len(contributing))
		neighbors := perHead[h.Name]
		if len(neighbors) == 0 {
			result.AttentionWeights[h.Name] = weights
			continue
		}

		scores := make([]float64, len(neighbors))
		for i, r := range neighbors {
			scores[i] = a.score(h.AttentionType, start.Embedding, r.node.Embedding) / a.temperature
		}
		alpha := sona.Softmax(scores)
		alpha = a.applyDropout(alpha)

		for i, r := range neighbors {
			weights[position[r.node.ID]] = alpha[i] * h.Weight
			for d := 0; d < a.inputDim && d < len(r.node.Embedding); d++ {
				context[d] += alpha[i] * h.Weight * float64(r.node.Embedding[d])
			}
		}
		result.AttentionWeights[h.Name] = weights
		totalHeadWeight += h.Weight
	}

	if totalHeadWeight > 0 {
		for d := range context {
			result.ContextVector[d] = float32(context[d] / totalHeadWeight)
		}
	}
	if a.normalize {
		result.ContextVector = sona.NormalizeVector(result.ContextVector)
	}
	return result
}

func (a *Attention) selectHeads(names []string) []Head {
	if len(names) == 0 {
		return a.heads
	}
	var out []Head
	for _, h := range a.heads {
		for _, name := range names {
			if h.Name == name {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// score computes an unscaled attention score between the query node and a
// neighbor. Dot-product scoring scales by sqrt(dim); additive scoring uses
// a parameter-free tanh blend.
func (a *Attention) score(attentionType string, query, key []float32) float64 {
	dim := len(query)
	if len(key) < dim {
		dim = len(key)
	}
	if dim == 0 {
		return 0
	}

	switch attentionType {
	case AttentionAdditive:
		sum := 0.0
		for i := 0; i < dim; i++ {
			sum += math.Tanh(float64(query[i]) + float64(key[i]))
		}
		return sum / float64(dim)
	default:
		return sona.DotProduct(query, key) / math.Sqrt(float64(dim))
	}
}

func (a *Attention) applyDropout(alpha []float64) []float64 {
	if a.dropout <= 0 {
		return alpha
	}

	// The RNG is stateful and AggregateContext holds only a read lock, so
	// draws need their own mutex.
	a.rngMu.Lock()
	defer a.rngMu.Unlock()

	kept := 0.0
	for i := range alpha {
		if a.rng.Float64() < a.dropout {
			alpha[i] = 0
		} else {
			kept += alpha[i]
		}
	}
	if kept > 0 {
		for i := range alpha {
			alpha[i] /= kept
		}
	}
	return alpha
}

func buildAdjacency(edges []sona.GraphEdge, relationshipTypes []string) map[string][]string {
	matches := func(rel string) bool {
		if len(relationshipTypes) == 0 {
			return true
		}
		for _, t := range relationshipTypes {
			if t == rel {
				return true
			}
		}
		return false
	}

	adjacency := make(map[string][]string)
	for _, e := range edges {
		if !matches(e.Relationship) {
			continue
		}
		adjacency[e.SourceID] = append(adjacency[e.SourceID], e.TargetID)
		adjacency[e.TargetID] = append(adjacency[e.TargetID], e.SourceID)
	}
	return adjacency
}
