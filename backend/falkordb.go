package backend

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/sona"
)

// FalkorDBGraph implements the graph half of the backend contract against
// a FalkorDB instance speaking the Redis protocol.
type FalkorDBGraph struct {
	client    redis.UniversalClient
	graphName string
}

// NewFalkorDBGraph connects using a falkordb://host:port/graph_name string
func NewFalkorDBGraph(connectionString string) (*FalkorDBGraph, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "sona"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return NewFalkorDBGraphWithClient(client, graphName), nil
}

// NewFalkorDBGraphWithClient wraps an existing client. Useful for testing
// and for sharing a connection with a RedisVectorStore.
func NewFalkorDBGraphWithClient(client redis.UniversalClient, graphName string) *FalkorDBGraph {
	if graphName == "" {
		graphName = "sona"
	}
	return &FalkorDBGraph{client: client, graphName: graphName}
}

// AddEdge merges both endpoint nodes and the relationship between them
func (f *FalkorDBGraph) AddEdge(ctx context.Context, edge *sona.GraphEdge) (string, error) {
	if edge == nil || edge.SourceID == "" || edge.TargetID == "" || edge.Relationship == "" {
		return "", sona.NewValidationError("edge", "missing source, target or relationship")
	}

	id := sona.NewID()
	rel := sanitizeLabel(edge.Relationship)
	props := map[string]any{"id": id}
	for k, v := range edge.Properties {
		props[sanitizeLabel(k)] = v
	}

	query := fmt.Sprintf(
		"MERGE (a:Entry {id: '%s'}) MERGE (b:Entry {id: '%s'}) MERGE (a)-[r:%s]->(b) SET r += %s",
		escapeString(edge.SourceID), escapeString(edge.TargetID), rel, propsToString(props),
	)
	if _, err := f.rawQuery(ctx, query); err != nil {
		return "", sona.NewBackendError("add_edge", err)
	}
	return id, nil
}

// GraphQuery runs a cypher query. Parameters are substituted as quoted
// $name placeholders before submission.
func (f *FalkorDBGraph) GraphQuery(ctx context.Context, query string, params map[string]any) (*sona.GraphQueryResult, error) {
	raw, err := f.rawQuery(ctx, substituteParams(query, params))
	if err != nil {
		return nil, sona.NewBackendError("graph_query", err)
	}
	return raw, nil
}

// GetNeighbors returns node ids reachable within depth hops as entry stubs.
// Only the id is populated; callers resolve full entries through the vector
// store.
func (f *FalkorDBGraph) GetNeighbors(ctx context.Context, id string, depth int) ([]*sona.VectorEntry, error) {
	if depth < 1 {
		depth = 1
	}

	query := fmt.Sprintf("MATCH (n {id: '%s'})-[*1..%d]-(m) RETURN DISTINCT m.id", escapeString(id), depth)
	result, err := f.rawQuery(ctx, query)
	if err != nil {
		return nil, sona.NewBackendError("get_neighbors", err)
	}

	neighbors := make([]*sona.VectorEntry, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		neighborID := fmt.Sprint(row[0])
		if neighborID == "" || neighborID == id {
			continue
		}
		neighbors = append(neighbors, &sona.VectorEntry{ID: neighborID})
	}
	return neighbors, nil
}

// IsGraphInitialized reports whether the FalkorDB instance answers queries
func (f *FalkorDBGraph) IsGraphInitialized() bool {
	return f.client.Ping(context.Background()).Err() == nil
}

// DeleteGraph removes the whole graph
func (f *FalkorDBGraph) DeleteGraph(ctx context.Context) error {
	return f.client.Do(ctx, "GRAPH.DELETE", f.graphName).Err()
}

// Close closes the underlying client
func (f *FalkorDBGraph) Close() error {
	return f.client.Close()
}

// rawQuery submits GRAPH.QUERY and decodes the header/result/stats reply
// into a tabular result.
func (f *FalkorDBGraph) rawQuery(ctx context.Context, query string) (*sona.GraphQueryResult, error) {
	res, err := f.client.Do(ctx, "GRAPH.QUERY", f.graphName, query, "--compact").Result()
	if err != nil {
		return nil, err
	}

	reply, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", res)
	}

	result := &sona.GraphQueryResult{}
	var rawHeader, rawRows interface{}
	switch len(reply) {
	case 3:
		rawHeader, rawRows = reply[0], reply[1]
	case 2:
		rawRows = reply[0]
	default:
		return nil, fmt.Errorf("unexpected response length: %d", len(reply))
	}

	if header, ok := rawHeader.([]interface{}); ok {
		result.Columns = make([]string, len(header))
		for i, h := range header {
			result.Columns[i] = flattenHeaderCell(h)
		}
	}
	if rows, ok := rawRows.([]interface{}); ok {
		result.Rows = make([][]any, 0, len(rows))
		for _, row := range rows {
			if cells, ok := row.([]interface{}); ok {
				decoded := make([]any, len(cells))
				for i, c := range cells {
					decoded[i] = decodeCell(c)
				}
				result.Rows = append(result.Rows, decoded)
			}
		}
	}
	return result, nil
}

// flattenHeaderCell handles both plain string headers and the compact-mode
// [type, name] pairs.
func flattenHeaderCell(h interface{}) string {
	if pair, ok := h.([]interface{}); ok && len(pair) == 2 {
		return fmt.Sprint(pair[1])
	}
	return fmt.Sprint(h)
}

func decodeCell(c interface{}) any {
	switch v := c.(type) {
	case []byte:
		return string(v)
	case []interface{}:
		// Compact mode wraps scalars as [type, value].
		if len(v) == 2 {
			return decodeCell(v[1])
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = decodeCell(item)
		}
		return out
	default:
		return v
	}
}

// substituteParams replaces $name placeholders with quoted values. Longer
// names are substituted first so $id never clobbers the prefix of $id2.
func substituteParams(query string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		query = strings.ReplaceAll(query, "$"+name, fmt.Sprint(quoteString(params[name])))
	}
	return query
}

var labelRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func sanitizeLabel(l string) string {
	clean := labelRegex.ReplaceAllString(l, "_")
	if clean == "" {
		return "RELATED_TO"
	}
	return clean
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

func quoteString(i interface{}) interface{} {
	switch x := i.(type) {
	case string:
		return "'" + escapeString(x) + "'"
	default:
		return i
	}
}

func propsToString(m map[string]any) string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s: %v", k, quoteString(v)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
