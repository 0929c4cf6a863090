package pattern

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/smallnest/sona"
)

// ExportVersion is the schema version written by ExportPatterns
const ExportVersion = "1.0.0"

type exportEnvelope struct {
	Version    string            `json:"version"`
	ExportedAt int64             `json:"exported_at"`
	Patterns   []*sona.Pattern   `json:"patterns"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ExportPatterns writes the working pattern set to path as a versioned JSON
// envelope. Optional metadata is stored alongside the patterns.
func (l *Loop) ExportPatterns(path string, metadata map[string]string) error {
	envelope := exportEnvelope{
		Version:    ExportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Patterns:   l.GetAllPatterns(),
		Metadata:   metadata,
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pattern export: %w", err)
	}
	return nil
}

// ImportPatterns loads a pattern export from path. With merge set, imported
// patterns join the current set (existing ids win); otherwise they replace
// it. It returns the number of patterns imported.
func (l *Loop) ImportPatterns(path string, merge bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pattern export: %w", err)
	}

	var envelope exportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("failed to parse pattern export: %w", err)
	}

	if envelope.Version == "" {
		return 0, sona.NewValidationError("version", "missing export version")
	}
	for i, p := range envelope.Patterns {
		if p == nil || p.ID == "" {
			return 0, sona.NewValidationError("patterns", fmt.Sprintf("pattern %d has no id", i))
		}
		if len(p.Centroid) == 0 {
			return 0, sona.NewValidationError("patterns", fmt.Sprintf("pattern %q has no centroid", p.ID))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !merge {
		l.patterns = make(map[string]*sona.Pattern, len(envelope.Patterns))
	}

	imported := 0
	for _, p := range envelope.Patterns {
		if merge {
			if _, exists := l.patterns[p.ID]; exists {
				continue
			}
		}
		l.patterns[p.ID] = p
		imported++
	}
	return imported, nil
}
