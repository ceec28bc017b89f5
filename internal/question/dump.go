package question

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// maxDumpPromptLen bounds the prompt excerpt stored in the dump file.
const maxDumpPromptLen = 100

// dumpEntry is the serialised per-question metadata record.
type dumpEntry struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	PrimaryTopic string     `json:"primary_topic,omitempty"`
	Subtopics    []string   `json:"subtopics,omitempty"`
	Keywords     [][]string `json:"keywords,omitempty"`
	LemmaSets    [][]string `json:"lemma_sets,omitempty"`
	FuzzyNorms   []string   `json:"fuzzy_norms,omitempty"`
	Vectors      [][]float32 `json:"vectors,omitempty"`
}

// writeDump serialises the batch metadata to a timestamped JSON file under
// dumpDir, creating the directory if needed. Returns the written path.
func (e *Enricher) writeDump(questions []Question) (string, error) {
	if err := os.MkdirAll(e.dumpDir, 0o755); err != nil {
		return "", fmt.Errorf("question: create dump dir: %w", err)
	}

	entries := make([]dumpEntry, len(questions))
	for i, q := range questions {
		entries[i] = dumpEntry{
			ID:           q.ID,
			Prompt:       truncatePrompt(q.Prompt),
			PrimaryTopic: q.PrimaryTopic,
			Subtopics:    q.Subtopics,
			Keywords:     q.Keywords,
			LemmaSets:    sortedLemmaSets(q.LemmaSets),
			FuzzyNorms:   q.FuzzyNorms,
			Vectors:      q.Vectors,
		}
	}

	payload := struct {
		GeneratedAt time.Time   `json:"generated_at"`
		Questions   []dumpEntry `json:"questions"`
	}{
		GeneratedAt: time.Now().UTC(),
		Questions:   entries,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("question: marshal dump: %w", err)
	}

	name := fmt.Sprintf("metadata-%s.json", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(e.dumpDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("question: write dump: %w", err)
	}
	return path, nil
}

func truncatePrompt(p string) string {
	runes := []rune(p)
	if len(runes) <= maxDumpPromptLen {
		return p
	}
	return string(runes[:maxDumpPromptLen]) + "…"
}

func sortedLemmaSets(sets []map[string]struct{}) [][]string {
	if sets == nil {
		return nil
	}
	out := make([][]string, len(sets))
	for i, set := range sets {
		lemmas := make([]string, 0, len(set))
		for l := range set {
			lemmas = append(lemmas, l)
		}
		sort.Strings(lemmas)
		out[i] = lemmas
	}
	return out
}
