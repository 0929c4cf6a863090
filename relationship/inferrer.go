package relationship

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// Relationship labels written to the graph backend.
const (
	RelationCoOccurs  = "CO_OCCURS_WITH"
	RelationSimilarTo = "SIMILAR_TO"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	datePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)
	// Two or more capitalized words in a row. Loose on purpose, the low
	// confidence reflects that.
	personPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
)

var entityConfidence = map[sona.EntityType]float64{
	sona.EntityEmail:  0.95,
	sona.EntityURL:    0.95,
	sona.EntityDate:   0.85,
	sona.EntityPerson: 0.5,
}

// InferOptions tunes a single inference pass
type InferOptions struct {
	MaxRelationships int // Cap on proposed co-occurrence edges, default 10
}

// InferenceResult reports what inference over one entry produced
type InferenceResult struct {
	Entities         []sona.Entity    `json:"entities"`
	Relationships    []sona.GraphEdge `json:"relationships"`
	EdgesCreated     int              `json:"edges_created"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
}

// BatchResult aggregates inference over many entries. Failures are isolated
// per entry so one bad entry never aborts the batch.
type BatchResult struct {
	EntriesProcessed int            `json:"entries_processed"`
	EdgesCreated     int            `json:"edges_created"`
	SimilarLinks     int            `json:"similar_links"`
	Failures         map[string]int `json:"failures,omitempty"`
}

// InferrerConfig holds configuration for the relationship inferrer
type InferrerConfig struct {
	SimilarityThreshold float64 // LinkSimilar default threshold, default 0.7
	MaxRelationships    int     // Default edge cap per entry, default 10
	Logger              log.Logger
}

// Inferrer extracts entities from stored content and writes relationship
// edges through the graph backend.
type Inferrer struct {
	backend   sona.Backend
	sanitizer *bluemonday.Policy
	simAt     float64
	maxEdges  int
	logger    log.Logger
}

// NewInferrer creates a new relationship inferrer on top of a backend
func NewInferrer(backend sona.Backend, config *InferrerConfig) *Inferrer {
	if config == nil {
		config = &InferrerConfig{}
	}

	simAt := config.SimilarityThreshold
	if simAt <= 0 {
		simAt = 0.7
	}
	maxEdges := config.MaxRelationships
	if maxEdges <= 0 {
		maxEdges = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Inferrer{
		backend:   backend,
		sanitizer: bluemonday.StrictPolicy(),
		simAt:     simAt,
		maxEdges:  maxEdges,
		logger:    logger,
	}
}

// ExtractEntities finds emails, URLs, dates and person names in text.
// Markup is stripped first. Results are de-duplicated by normalized text,
// keep the first occurrence, and come back sorted by start position. An
// optional type list restricts which extractors run.
func (inf *Inferrer) ExtractEntities(text string, types ...sona.EntityType) []sona.Entity {
	if strings.TrimSpace(text) == "" {
		return []sona.Entity{}
	}
	text = inf.sanitizer.Sanitize(text)

	wanted := func(t sona.EntityType) bool {
		if len(types) == 0 {
			return true
		}
		for _, w := range types {
			if w == t {
				return true
			}
		}
		return false
	}

	var entities []sona.Entity
	collect := func(t sona.EntityType, re *regexp.Regexp) {
		if !wanted(t) {
			return
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			entities = append(entities, sona.Entity{
				Type:       t,
				Text:       text[loc[0]:loc[1]],
				Confidence: entityConfidence[t],
				StartPos:   loc[0],
				EndPos:     loc[1],
			})
		}
	}

	collect(sona.EntityEmail, emailPattern)
	collect(sona.EntityURL, urlPattern)
	collect(sona.EntityDate, datePattern)
	collect(sona.EntityPerson, personPattern)

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].StartPos < entities[j].StartPos
	})

	seen := make(map[string]bool, len(entities))
	out := entities[:0]
	for _, e := range entities {
		key := strings.ToLower(strings.TrimSpace(e.Text))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	if out == nil {
		out = []sona.Entity{}
	}
	return out
}

// InferFromContent extracts entities from an entry's content and creates
// co-occurrence edges between them. Entries without text yield an empty
// result. Edge creation failures are logged and skipped so the hot path
// never aborts on a transient backend error.
func (inf *Inferrer) InferFromContent(ctx context.Context, entry *sona.VectorEntry, opts *InferOptions) (*InferenceResult, error) {
	start := time.Now()
	result := &InferenceResult{
		Entities:      []sona.Entity{},
		Relationships: []sona.GraphEdge{},
	}
	if entry == nil || strings.TrimSpace(entry.Content) == "" {
		return result, nil
	}

	maxEdges := inf.maxEdges
	if opts != nil && opts.MaxRelationships > 0 {
		maxEdges = opts.MaxRelationships
	}

	result.Entities = inf.ExtractEntities(entry.Content)

	for i := 0; i < len(result.Entities) && len(result.Relationships) < maxEdges; i++ {
		for j := i + 1; j < len(result.Entities) && len(result.Relationships) < maxEdges; j++ {
			result.Relationships = append(result.Relationships, sona.GraphEdge{
				SourceID:     entityNodeID(result.Entities[i]),
				TargetID:     entityNodeID(result.Entities[j]),
				Relationship: RelationCoOccurs,
				Properties: map[string]any{
					"entry_id": entry.ID,
				},
			})
		}
	}

	for i := range result.Relationships {
		if _, err := inf.backend.AddEdge(ctx, &result.Relationships[i]); err != nil {
			inf.logger.Warn("edge creation failed for entry %s: %v", entry.ID, err)
			continue
		}
		result.EdgesCreated++
	}

	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

func entityNodeID(e sona.Entity) string {
	return string(e.Type) + ":" + strings.ToLower(strings.TrimSpace(e.Text))
}

// LinkSimilar searches for near-duplicates of the entry's vector and creates
// a SIMILAR_TO edge per match at or above the threshold. A missing source
// entry yields 0. A threshold of 0 uses the configured default.
func (inf *Inferrer) LinkSimilar(ctx context.Context, id string, threshold float64) (int, error) {
	if threshold <= 0 {
		threshold = inf.simAt
	}

	entry, err := inf.backend.Get(ctx, id)
	if err != nil {
		return 0, sona.NewBackendError("get", err)
	}
	if entry == nil || len(entry.Vector) == 0 {
		return 0, nil
	}

	matches, err := inf.backend.Search(ctx, entry.Vector, &sona.SearchOptions{
		Limit:    inf.maxEdges + 1, // room for the self match
		MinScore: threshold,
	})
	if err != nil {
		return 0, sona.NewBackendError("search", err)
	}

	created := 0
	for _, m := range matches {
		if m.Entry == nil || m.Entry.ID == id {
			continue
		}
		edge := &sona.GraphEdge{
			SourceID:     id,
			TargetID:     m.Entry.ID,
			Relationship: RelationSimilarTo,
			Properties: map[string]any{
				"score": m.Score,
			},
		}
		if _, err := inf.backend.AddEdge(ctx, edge); err != nil {
			inf.logger.Warn("similar link failed for %s -> %s: %v", id, m.Entry.ID, err)
			continue
		}
		created++
	}
	return created, nil
}

// BatchInfer runs inference over many entries, isolating per-entry failures.
// Similar-linking runs per entry only when the graph backend reports itself
// initialized.
func (inf *Inferrer) BatchInfer(ctx context.Context, entries []*sona.VectorEntry, opts *InferOptions) *BatchResult {
	result := &BatchResult{Failures: make(map[string]int)}
	graphReady := inf.backend.IsGraphInitialized()

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		inferred, err := inf.InferFromContent(ctx, entry, opts)
		if err != nil {
			result.Failures[entry.ID]++
			continue
		}
		result.EntriesProcessed++
		result.EdgesCreated += inferred.EdgesCreated

		if graphReady && entry.ID != "" {
			links, err := inf.LinkSimilar(ctx, entry.ID, 0)
			if err != nil {
				result.Failures[entry.ID]++
				continue
			}
			result.SimilarLinks += links
		}
	}

	if len(result.Failures) == 0 {
		result.Failures = nil
	}
	return result
}
