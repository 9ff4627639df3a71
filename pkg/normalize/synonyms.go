package normalize

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/moderation-synonyms.json
var defaultSynonymsJSON []byte

// DefaultSynonyms returns the built-in moderation synonym table.
func DefaultSynonyms() map[string][]string {
	out, err := ParseSynonyms(defaultSynonymsJSON, ".json")
	if err != nil {
		// the embedded table is part of the build
		panic(fmt.Sprintf("embedded synonym table: %v", err))
	}
	return out
}

// LoadSynonyms reads a synonym table from disk. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON. An empty path yields the
// built-in table.
func LoadSynonyms(path string) (map[string][]string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSynonyms(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms %s: %w", path, err)
	}
	return ParseSynonyms(data, filepath.Ext(path))
}

// ParseSynonyms decodes a head-term → synonym-list table.
func ParseSynonyms(data []byte, ext string) (map[string][]string, error) {
	out := map[string][]string{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode yaml synonyms: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode json synonyms: %w", err)
		}
	}
	return out, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
